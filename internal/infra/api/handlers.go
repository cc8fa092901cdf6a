package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"billing-ops-platform/internal/domain"
	"billing-ops-platform/internal/usecase"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain sentinels onto HTTP statuses. Anything unmapped is an
// opaque 500; internals never leak to the client.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrInvalidPlan):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown plan"})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
	case errors.Is(err, domain.ErrSignatureInvalid):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "signature verification failed"})
	case errors.Is(err, domain.ErrAmountMismatch):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "amount mismatch"})
	case errors.Is(err, domain.ErrSubscriptionMismatch):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "subscription mismatch"})
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "insufficient balance"})
	case errors.Is(err, domain.ErrBelowMinimumPayout):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "below minimum payout"})
	case errors.Is(err, domain.ErrPayoutAlreadyPending):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "payout already pending"})
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "conflicting state change"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ----- subscription / payment -----

type createTrialRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) handleCreateTrial(w http.ResponseWriter, r *http.Request) {
	var req createTrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}
	out, err := s.subUC.CreateTrial(r.Context(), claimsFrom(r.Context()).UserID(), req.Plan)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type verifyPaymentRequest struct {
	PaymentID      string `json:"paymentId"`
	Signature      string `json:"signature"`
	Plan           string `json:"plan"`
	OrderID        string `json:"orderId"`
	SubscriptionID string `json:"subscriptionId"`
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}
	out, err := s.subUC.VerifyPayment(r.Context(), claimsFrom(r.Context()).UserID(), usecase.VerifyRequest{
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
		PlanCode:       req.Plan,
		OrderID:        req.OrderID,
		SubscriptionID: req.SubscriptionID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCurrentPlan(w http.ResponseWriter, r *http.Request) {
	out, err := s.subUC.CurrentPlan(r.Context(), claimsFrom(r.Context()).UserID())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ----- wallet -----

type topupRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleCreateTopup(w http.ResponseWriter, r *http.Request) {
	var req topupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}
	order, err := s.walletUC.CreateTopupOrder(r.Context(), claimsFrom(r.Context()).UserID(), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"orderId":  order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
	})
}

type verifyTopupRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

func (s *Server) handleVerifyTopup(w http.ResponseWriter, r *http.Request) {
	var req verifyTopupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}
	t, err := s.walletUC.VerifyTopup(r.Context(), claimsFrom(r.Context()).UserID(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactionId": t.ID,
		"amount":        t.Amount,
		"balanceAfter":  t.BalanceAfter,
	})
}

func (s *Server) handleWalletTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.walletUC.Transactions(r.Context(), claimsFrom(r.Context()).UserID(),
		queryInt(r, "offset", 0), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(txs))
	for _, t := range txs {
		out = append(out, map[string]interface{}{
			"id":            t.ID,
			"direction":     t.Direction,
			"amount":        t.Amount,
			"reason":        t.Reason,
			"balanceBefore": t.BalanceBefore,
			"balanceAfter":  t.BalanceAfter,
			"createdAt":     t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ----- affiliate -----

func (s *Server) handleListCommissions(w http.ResponseWriter, r *http.Request) {
	list, err := s.commUC.Commissions(r.Context(), claimsFrom(r.Context()).UserID(),
		queryInt(r, "offset", 0), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	list, err := s.commUC.Payouts(r.Context(), claimsFrom(r.Context()).UserID(),
		queryInt(r, "offset", 0), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRequestPayout(w http.ResponseWriter, r *http.Request) {
	payout, err := s.commUC.RequestPayout(r.Context(), claimsFrom(r.Context()).UserID())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payout)
}

// ----- admin -----

func (s *Server) handleApprovePayout(w http.ResponseWriter, r *http.Request) {
	payout, err := s.commUC.ApprovePayout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (s *Server) handleRejectPayout(w http.ResponseWriter, r *http.Request) {
	if err := s.commUC.RejectPayout(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleApproveCommission(w http.ResponseWriter, r *http.Request) {
	if err := s.commUC.Approve(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type revokeCommissionRequest struct {
	Refund bool `json:"refund"`
}

func (s *Server) handleRevokeCommission(w http.ResponseWriter, r *http.Request) {
	var req revokeCommissionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := s.commUC.Revoke(r.Context(), chi.URLParam(r, "id"), req.Refund); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCancelCommission(w http.ResponseWriter, r *http.Request) {
	if err := s.commUC.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type grantManualRequest struct {
	Plan string `json:"plan"`
	Note string `json:"note"`
}

func (s *Server) handleGrantManual(w http.ResponseWriter, r *http.Request) {
	var req grantManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation)
		return
	}
	sub, err := s.subUC.GrantManual(r.Context(), chi.URLParam(r, "id"), req.Plan, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"subscriptionId": sub.ID,
		"status":         sub.Status,
		"endAt":          sub.EndAt,
	})
}
