// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billing-ops-platform/internal/config"
	"billing-ops-platform/internal/domain/ports/adapter"
	"billing-ops-platform/internal/infra/api"
	pg "billing-ops-platform/internal/infra/db/postgres"
	"billing-ops-platform/internal/infra/logging"
	"billing-ops-platform/internal/infra/metrics"
	"billing-ops-platform/internal/infra/notify"
	"billing-ops-platform/internal/infra/payment"
	red "billing-ops-platform/internal/infra/redis"
	"billing-ops-platform/internal/infra/sched"
	"billing-ops-platform/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed timeouts)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	userRepo := pg.NewUserRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	walletRepo := pg.NewWalletRepo(pool)
	commRepo := pg.NewCommissionRepo(pool)
	payoutRepo := pg.NewPayoutRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Gateway + plan table ----
	var gateway adapter.PaymentGateway
	if cfg.Runtime.Dev && cfg.Gateway.KeyID == "" {
		noop := payment.NewNoopGateway()
		noop.RegisterPlan(adapter.GatewayPlan{ID: cfg.Billing.TokenPlanID, Amount: cfg.Billing.TokenAmount, Currency: cfg.Billing.Currency})
		for _, p := range cfg.Billing.Plans {
			noop.RegisterPlan(adapter.GatewayPlan{ID: p.GatewayPlanID, Amount: p.Price, Currency: cfg.Billing.Currency})
		}
		logger.Warn().Msg("no gateway credentials configured, using in-memory gateway")
		gateway = noop
	} else {
		gateway = payment.NewRazorpayDirectGateway(cfg.Gateway.KeyID, cfg.Gateway.KeySecret, cfg.Gateway.WebhookSecret, cfg.Gateway.BaseURL)
	}
	planTable, err := usecase.NewPlanTable(cfg.Billing)
	if err != nil {
		logger.Fatal().Err(err).Msg("plan table")
	}
	notifier := notify.NewLogNotifier(logger)

	// ---- Use cases ----
	walletUC := usecase.NewWalletUseCase(walletRepo, payRepo, gateway, txManager, rateLimiter, cfg.Wallet, cfg.Billing.Currency, logger)
	subUC := usecase.NewSubscriptionUseCase(payRepo, subRepo, userRepo, gateway, planTable, notifier, locker, txManager, logger)
	commUC := usecase.NewCommissionUseCase(commRepo, payoutRepo, walletUC, txManager, cfg.Affiliate, logger)
	webhookUC := usecase.NewWebhookUseCase(subUC, walletUC, commUC, logger)

	// ---- Workers ----
	expiryWorker := sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, subUC, subRepo, logger)
	commissionWorker := sched.NewCommissionWorker(cfg.Scheduler.CommissionInterval, commUC, logger)
	reconciler := sched.NewPaymentReconciler(payRepo, time.Hour, 24*time.Hour, logger)
	go func() { _ = expiryWorker.Run(ctx) }()
	go func() { _ = commissionWorker.Run(ctx) }()
	go func() { _ = reconciler.Run(ctx) }()

	// ---- HTTP ----
	auth := api.NewAuthManager(cfg.API.JWTSecret, 30*time.Minute)
	server := api.NewServer(subUC, walletUC, commUC, webhookUC, gateway, auth, logger)
	httpSrv := server.Serve(fmt.Sprintf(":%d", cfg.API.Port))

	go func() {
		logger.Info().Int("port", cfg.API.Port).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
