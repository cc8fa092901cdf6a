package api

import (
	"encoding/json"
	"io"
	"net/http"

	"billing-ops-platform/internal/domain/ports/adapter"
	"billing-ops-platform/internal/infra/metrics"
	"billing-ops-platform/internal/usecase"
)

// webhookEnvelope is the gateway's delivery format: an event name plus the
// entities the event concerns.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity *paymentEntity `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity *orderEntity `json:"entity"`
		} `json:"order"`
		Subscription struct {
			Entity *subscriptionEntity `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

type paymentEntity struct {
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

type orderEntity struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type subscriptionEntity struct {
	ID     string `json:"id"`
	PlanID string `json:"plan_id"`
	Status string `json:"status"`
}

// handleWebhook authenticates the delivery by HMAC over the raw body, then
// dispatches. After a valid signature the response is always 200: handler
// failures are internal and retrying the gateway would not fix them.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("X-Razorpay-Signature")
	if !s.gateway.VerifyWebhookSignature(body, sig) {
		metrics.IncWebhookSignatureFailure()
		s.log.Warn().Str("event", "unknown").Msg("webhook signature rejected")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.log.Warn().Err(err).Msg("webhook body unparseable")
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	s.webhookUC.HandleEvent(r.Context(), toWebhookEvent(&env))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func toWebhookEvent(env *webhookEnvelope) usecase.WebhookEvent {
	ev := usecase.WebhookEvent{Event: env.Event}
	if p := env.Payload.Payment.Entity; p != nil {
		ev.Payment = &adapter.GatewayPayment{
			ID:             p.ID,
			OrderID:        p.OrderID,
			SubscriptionID: p.SubscriptionID,
			Amount:         p.Amount,
			Currency:       p.Currency,
			Status:         p.Status,
			Method:         p.Method,
			NotesReceipt:   p.Notes.Receipt,
		}
	}
	if o := env.Payload.Order.Entity; o != nil {
		ev.Order = &adapter.GatewayOrder{
			ID:       o.ID,
			Amount:   o.Amount,
			Currency: o.Currency,
			Receipt:  o.Receipt,
			Status:   o.Status,
		}
	}
	if sub := env.Payload.Subscription.Entity; sub != nil {
		ev.Subscription = &adapter.GatewaySubscription{
			ID:     sub.ID,
			PlanID: sub.PlanID,
			Status: sub.Status,
		}
	}
	return ev
}
