package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"billing-ops-platform/internal/domain/ports/adapter"
	"billing-ops-platform/internal/usecase"
)

// Server exposes the billing HTTP surface: the gateway webhook, the
// user-facing billing API and the admin API.
type Server struct {
	subUC     usecase.SubscriptionUseCase
	walletUC  usecase.WalletUseCase
	commUC    usecase.CommissionUseCase
	webhookUC usecase.WebhookUseCase
	gateway   adapter.PaymentGateway
	auth      *AuthManager
	log       *zerolog.Logger
}

func NewServer(
	subUC usecase.SubscriptionUseCase,
	walletUC usecase.WalletUseCase,
	commUC usecase.CommissionUseCase,
	webhookUC usecase.WebhookUseCase,
	gateway adapter.PaymentGateway,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "APIServer").Logger()
	return &Server{
		subUC:     subUC,
		walletUC:  walletUC,
		commUC:    commUC,
		webhookUC: webhookUC,
		gateway:   gateway,
		auth:      auth,
		log:       &l,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID())
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))
	r.Use(Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// webhook authenticates by HMAC signature, not by session
	r.Post("/api/v1/webhook/"+s.gateway.Name(), s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireUser)
			r.Post("/subscriptions/trial", s.handleCreateTrial)
			r.Post("/payments/verify", s.handleVerifyPayment)
			r.Get("/me/plan", s.handleCurrentPlan)

			r.Post("/wallet/topup", s.handleCreateTopup)
			r.Post("/wallet/topup/verify", s.handleVerifyTopup)
			r.Get("/wallet/transactions", s.handleWalletTransactions)

			r.Get("/affiliate/commissions", s.handleListCommissions)
			r.Get("/affiliate/payouts", s.handleListPayouts)
			r.Post("/affiliate/payouts", s.handleRequestPayout)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAdmin)
			r.Post("/admin/payouts/{id}/approve", s.handleApprovePayout)
			r.Post("/admin/payouts/{id}/reject", s.handleRejectPayout)
			r.Post("/admin/commissions/{id}/approve", s.handleApproveCommission)
			r.Post("/admin/commissions/{id}/revoke", s.handleRevokeCommission)
			r.Post("/admin/commissions/{id}/cancel", s.handleCancelCommission)
			r.Post("/admin/users/{id}/grant", s.handleGrantManual)
		})
	})
	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) Serve(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
