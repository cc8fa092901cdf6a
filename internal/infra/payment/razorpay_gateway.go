package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"billing-ops-platform/internal/domain/ports/adapter"
)

const defaultBaseURL = "https://api.razorpay.com/v1"

// Compile-time check
var _ adapter.PaymentGateway = (*RazorpayDirectGateway)(nil)

// RazorpayDirectGateway implements the payment gateway port using direct HTTP
// calls against the Razorpay REST API with basic auth.
type RazorpayDirectGateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

// NewRazorpayDirectGateway creates a new direct Razorpay gateway. baseURL is
// overridable for tests; empty selects the production API.
func NewRazorpayDirectGateway(keyID, keySecret, webhookSecret, baseURL string) *RazorpayDirectGateway {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &RazorpayDirectGateway{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *RazorpayDirectGateway) Name() string { return "razorpay" }

// razorpaySubscription represents the subscription entity returned by the API.
type razorpaySubscription struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	Status     string `json:"status"`
	StartAt    int64  `json:"start_at"`
	TotalCount int    `json:"total_count"`
	ShortURL   string `json:"short_url"`
}

type razorpayPayment struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	SubscriptionID string `json:"subscription_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	Method         string `json:"method"`
	Notes          struct {
		Receipt string `json:"receipt"`
	} `json:"notes"`
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayPlan struct {
	ID     string `json:"id"`
	Period string `json:"period"`
	Item   struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"item"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// call performs one authenticated API round-trip and decodes the response
// into out.
func (g *RazorpayDirectGateway) call(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr razorpayError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Code != "" {
			return fmt.Errorf("razorpay error: code %s, message: %s", apiErr.Error.Code, apiErr.Error.Description)
		}
		return fmt.Errorf("razorpay error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(respBody))
		}
	}
	return nil
}

func (g *RazorpayDirectGateway) CreateSubscription(ctx context.Context, planID string, startAt time.Time, totalCount int, addons []adapter.SubscriptionAddon) (*adapter.GatewaySubscription, error) {
	requestData := map[string]interface{}{
		"plan_id":         planID,
		"total_count":     totalCount,
		"customer_notify": 1,
	}
	// a start in the past makes the gateway bill immediately; omit it then
	if startAt.After(time.Now()) {
		requestData["start_at"] = startAt.Unix()
	}
	if len(addons) > 0 {
		items := make([]map[string]interface{}, 0, len(addons))
		for _, a := range addons {
			items = append(items, map[string]interface{}{
				"item": map[string]interface{}{
					"name":     a.Name,
					"amount":   a.Amount,
					"currency": a.Currency,
				},
			})
		}
		requestData["addons"] = items
	}

	var sub razorpaySubscription
	if err := g.call(ctx, http.MethodPost, "/subscriptions", requestData, &sub); err != nil {
		return nil, err
	}
	return toGatewaySubscription(&sub), nil
}

func (g *RazorpayDirectGateway) GetSubscription(ctx context.Context, id string) (*adapter.GatewaySubscription, error) {
	var sub razorpaySubscription
	if err := g.call(ctx, http.MethodGet, "/subscriptions/"+id, nil, &sub); err != nil {
		return nil, err
	}
	return toGatewaySubscription(&sub), nil
}

func (g *RazorpayDirectGateway) GetPayment(ctx context.Context, id string) (*adapter.GatewayPayment, error) {
	var p razorpayPayment
	if err := g.call(ctx, http.MethodGet, "/payments/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &adapter.GatewayPayment{
		ID:             p.ID,
		OrderID:        p.OrderID,
		SubscriptionID: p.SubscriptionID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         p.Status,
		Method:         p.Method,
		NotesReceipt:   p.Notes.Receipt,
	}, nil
}

func (g *RazorpayDirectGateway) GetOrder(ctx context.Context, id string) (*adapter.GatewayOrder, error) {
	var o razorpayOrder
	if err := g.call(ctx, http.MethodGet, "/orders/"+id, nil, &o); err != nil {
		return nil, err
	}
	return toGatewayOrder(&o), nil
}

func (g *RazorpayDirectGateway) FetchPlan(ctx context.Context, id string) (*adapter.GatewayPlan, error) {
	var p razorpayPlan
	if err := g.call(ctx, http.MethodGet, "/plans/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &adapter.GatewayPlan{
		ID:       p.ID,
		Amount:   p.Item.Amount,
		Currency: p.Item.Currency,
		Period:   p.Period,
	}, nil
}

func (g *RazorpayDirectGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*adapter.GatewayOrder, error) {
	requestData := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
		"notes": map[string]interface{}{
			"receipt": receipt,
		},
	}
	var o razorpayOrder
	if err := g.call(ctx, http.MethodPost, "/orders", requestData, &o); err != nil {
		return nil, err
	}
	return toGatewayOrder(&o), nil
}

func (g *RazorpayDirectGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verifySignature(g.keySecret, []byte(orderID+"|"+paymentID), signature)
}

func (g *RazorpayDirectGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return verifySignature(g.webhookSecret, body, signature)
}

func toGatewaySubscription(sub *razorpaySubscription) *adapter.GatewaySubscription {
	return &adapter.GatewaySubscription{
		ID:         sub.ID,
		PlanID:     sub.PlanID,
		Status:     sub.Status,
		StartAt:    time.Unix(sub.StartAt, 0),
		TotalCount: sub.TotalCount,
		ShortURL:   sub.ShortURL,
	}
}

func toGatewayOrder(o *razorpayOrder) *adapter.GatewayOrder {
	return &adapter.GatewayOrder{
		ID:       o.ID,
		Amount:   o.Amount,
		Currency: o.Currency,
		Receipt:  o.Receipt,
		Status:   o.Status,
	}
}
