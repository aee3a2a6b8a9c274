package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"instafund/internal/accounts"
	"instafund/internal/admin"
	"instafund/internal/auth"
	"instafund/internal/challenge"
	"instafund/internal/config"
	"instafund/internal/db"
	"instafund/internal/events"
	"instafund/internal/health"
	"instafund/internal/httpserver"
	"instafund/internal/kyc"
	"instafund/internal/lock"
	"instafund/internal/payments"
	"instafund/internal/settings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func loadSnapshot(cfg config.Config) (settings.Snapshot, error) {
	catalog := challenge.DefaultCatalog()
	if cfg.RulesFile != "" {
		c, err := settings.LoadCatalogFile(cfg.RulesFile)
		if err != nil {
			return settings.Snapshot{}, err
		}
		catalog = c
	}
	return settings.Snapshot{Rules: catalog, Admin: cfg.Admin, CapitalPolicy: cfg.CapitalPolicy}, nil
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.AppMode, cfg.LogLevel)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap, err := loadSnapshot(cfg)
	if err != nil {
		return err
	}
	store, err := settings.NewStore(snap)
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	healthHandler := health.NewHandler(time.Now(), cfg.AppMode)
	healthHandler.AddCheck("database", pool.Ping)

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		locker = lock.NewRedisLocker(rdb, lock.DefaultRedisOptions())
		healthHandler.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis account locks")
	}

	bus := events.NewBus()
	authSvc := auth.NewService(pool, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	kycSvc := kyc.NewService(kyc.NewPostgresStore(pool))
	accountSvc := accounts.NewService(accounts.NewPostgresRepository(pool), locker, store, bus)
	accountSvc.SetKYCChecker(kycSvc)
	paySvc := payments.NewService(payments.Config{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		PriceID:       cfg.Stripe.PriceID,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	}, accountSvc, kycSvc)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:     auth.NewHandler(authSvc, accountSvc),
		AccountsHandler: accounts.NewHandler(accountSvc),
		KYCHandler:      kyc.NewHandler(kycSvc),
		PaymentsHandler: payments.NewHandler(paySvc),
		AdminHandler:    admin.NewHandler(cfg.AdminPasswordHash, cfg.JWTSecret, store, accountSvc, bus),
		AuthService:     authSvc,
		HealthHandler:   healthHandler,
		WSHandler:       httpserver.NewWSHandler(bus, authSvc, accountSvc, cfg.WebSocketOrigin),
		InternalToken:   cfg.InternalToken,
		JWTSecret:       cfg.JWTSecret,
		CORSOrigin:      cfg.WebSocketOrigin,
		RateLimiter:     httpserver.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("mode", cfg.AppMode).
		Str("company", cfg.Admin.CompanyName).
		Str("capital_policy", string(cfg.CapitalPolicy)).
		Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
