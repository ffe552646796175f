package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pix-subscription-billing/internal/config"
	"pix-subscription-billing/internal/domain/ports/adapter"
	"pix-subscription-billing/internal/infra/adapters/cpa"
	"pix-subscription-billing/internal/infra/adapters/providers"
	pg "pix-subscription-billing/internal/infra/db/postgres"
	"pix-subscription-billing/internal/infra/logging"
	"pix-subscription-billing/internal/infra/metrics"
	red "pix-subscription-billing/internal/infra/redis"
	"pix-subscription-billing/internal/infra/sched"
	"pix-subscription-billing/internal/infra/web"
	"pix-subscription-billing/internal/infra/worker"
	"pix-subscription-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	sessionRepo := pg.NewSessionRepo(pool)
	ledgerRepo := pg.NewLedgerRepo(pool)
	userRepo := pg.NewUserRepo(pool)
	campaignRepo := pg.NewCampaignRepo(pool)
	deadLetterRepo := pg.NewDeadLetterRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Providers ----
	registry, err := buildRegistry(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("provider registry")
	}
	logger.Info().Strs("providers", registry.Names()).Str("default", cfg.Providers.Default).Msg("providers configured")

	// ---- Background pool for off-path work ----
	wpool := worker.NewPool(4, logger)
	wpool.Start(ctx)
	defer wpool.Stop()

	// ---- CPA postback ----
	var notifier adapter.ConversionNotifier
	if cfg.CPA.PostbackURL != "" {
		notifier = cpa.NewPostbackClient(cfg.CPA.PostbackURL, cfg.CPA.Timeout, logger)
	}

	// ---- Use cases ----
	entitleUC := usecase.NewEntitlementActivator(userRepo, logger)
	attribUC := usecase.NewAttributionLinker(campaignRepo, notifier, wpool, logger)
	chargeUC := usecase.NewChargeUseCase(sessionRepo, campaignRepo, registry, logger)
	engine := usecase.NewReconciliationEngine(sessionRepo, ledgerRepo, deadLetterRepo, entitleUC, attribUC, registry, tm, locker, logger)
	dedupUC := usecase.NewDuplicateResolver(ledgerRepo, tm, logger)
	statsUC := usecase.NewStatsUseCase(ledgerRepo, deadLetterRepo)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, !cfg.Runtime.Dev, "", cfg.Admin.TokenTTL)
	srv := web.NewServer(chargeUC, engine, dedupUC, statsUC, entitleUC, registry, auth, cfg.Admin.APIKey, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Background workers ----
	poller := sched.NewStatusPoller(engine, sessionRepo, cfg.Reconciler.PollInterval, cfg.Reconciler.StaleAfter, cfg.Reconciler.BatchSize, logger)
	go func() { _ = poller.Run(ctx) }()

	expiry := sched.NewExpiryWorker(sessionRepo, 10*time.Minute, cfg.Reconciler.SessionExpiry, cfg.Reconciler.BatchSize, logger)
	go func() { _ = expiry.Run(ctx) }()

	dlq := sched.NewDeadLetterWorker(engine, deadLetterRepo, cfg.Reconciler.DeadLetterInterval, cfg.Reconciler.DeadLetterMaxAttempts, cfg.Reconciler.BatchSize, logger)
	go func() { _ = dlq.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}

// buildRegistry constructs an adapter for every provider with credentials
// in config. Billing can run on a subset; only the default is mandatory.
func buildRegistry(cfg *config.Config) (*providers.Registry, error) {
	var list []adapter.PaymentProvider

	if cfg.Providers.MercadoPago.AccessToken != "" {
		list = append(list, providers.NewMercadoPagoAdapter(cfg.Providers.MercadoPago))
	}
	if cfg.Providers.PushinPay.Token != "" {
		list = append(list, providers.NewPushinPayAdapter(cfg.Providers.PushinPay))
	}
	if cfg.Providers.Efi.ClientID != "" {
		efi, err := providers.NewEfiAdapter(cfg.Providers.Efi)
		if err != nil {
			return nil, err
		}
		list = append(list, efi)
	}
	if cfg.Providers.Stripe.SecretKey != "" {
		list = append(list, providers.NewStripeAdapter(cfg.Providers.Stripe))
	}

	return providers.NewRegistry(cfg.Providers.Default, list...)
}
