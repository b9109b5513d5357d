package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"coupon-payments/internal/config"
	"coupon-payments/internal/domain/model"
	"coupon-payments/internal/domain/ports/adapter"
	"coupon-payments/internal/infra/adapters/backend"
	payAdapters "coupon-payments/internal/infra/adapters/payment"
	"coupon-payments/internal/infra/api"
	pg "coupon-payments/internal/infra/db/postgres"
	"coupon-payments/internal/infra/i18n"
	"coupon-payments/internal/infra/logging"
	"coupon-payments/internal/infra/metrics"
	"coupon-payments/internal/infra/rabbitmq"
	red "coupon-payments/internal/infra/redis"
	"coupon-payments/internal/infra/sched"
	"coupon-payments/internal/infra/security"
	"coupon-payments/internal/infra/session"
	"coupon-payments/internal/infra/worker"
	"coupon-payments/internal/usecase"
)

const devJWTSecret = "dev-only-jwt-secret"

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: stub providers, backend and broker when unconfigured")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	deps := usecase.PaymentDeps{
		Intents: pg.NewIntentRepo(pool),
		Tx:      pg.NewTxManager(pool),
	}

	// ---- Redis ----
	var limiter api.Limiter
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		deps.Replay = red.NewReplayGuard(redisClient)
		deps.WatchLock = red.NewWatchLock(redisClient)
		limiter = red.NewRateLimiter(redisClient)
	} else {
		logger.Warn().Msg("redis not configured; webhook replay guard and watch lock disabled")
	}

	// ---- RabbitMQ ----
	var publisher adapter.EventPublisher = rabbitmq.NoopPublisher{Log: logger}
	if cfg.RabbitMQ.URL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq")
		}
		defer producer.Close()
		publisher = producer
	}
	eventPool := worker.NewPool(2, 256, logger)
	eventPool.Start(context.Background())
	deps.Events = worker.NewAsyncPublisher(eventPool, publisher)

	// ---- Business backend ----
	if cfg.Backend.BaseURL != "" {
		bc := backend.NewClient(cfg.Backend, logger)
		deps.Committer, deps.Discounts = bc, bc
	} else if cfg.Runtime.Dev {
		nb := backend.NewNoop()
		deps.Committer, deps.Discounts = nb, nb
		logger.Warn().Msg("backend not configured; commits are recorded in memory")
	} else {
		logger.Fatal().Msg("backend.base_url is required")
	}

	// ---- Providers ----
	deps.Providers = buildProviders(cfg, logger)

	// ---- Use case ----
	paymentUC := usecase.NewPaymentUseCase(deps, usecase.PaymentOptions{
		PublicOrigin:      cfg.HTTP.PublicOrigin,
		ReturnPath:        cfg.HTTP.ReturnPath,
		IntentTTL:         cfg.Payment.IntentTTL,
		InitiationTimeout: cfg.Payment.InitiationTimeout,
		PollInterval:      cfg.Payment.PollInterval,
		PollDeadline:      cfg.Payment.PollDeadline,
		CommitDelay:       cfg.Payment.CommitDelay,
	}, logger)

	// ---- HTTP ----
	codec, err := security.NewEncryptionService(cfg.Session.Secret, cfg.Session.KDFIterations)
	if err != nil {
		logger.Fatal().Err(err).Msg("session codec")
	}
	sessions := session.NewManager(codec, session.DefaultSchema(), session.CookieConfig{
		Name:   cfg.Session.CookieName,
		Domain: cfg.Session.CookieDomain,
		Secure: cfg.Session.Secure,
	}, cfg.Session.TTL, logger)

	translators := map[string]*i18n.Translator{}
	for _, lang := range []string{"en", "ja"} {
		tr, err := i18n.NewTranslator(i18n.LocalesFS, lang)
		if err != nil {
			logger.Fatal().Err(err).Str("lang", lang).Msg("translations")
		}
		translators[lang] = tr
	}

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = devJWTSecret
	}
	auth := api.NewAuthenticator(jwtSecret, cfg.Auth.CookieName)
	if cfg.Runtime.Dev && cfg.Auth.JWTSecret == "" {
		if tok, err := auth.Mint("dev-user", 24*time.Hour); err == nil {
			logger.Warn().Str("token", tok).Msg("auth.jwt_secret not set; bearer token for dev-user")
		}
	}

	srv := api.NewServer(paymentUC, sessions, auth, translators, api.Options{
		PublicOrigin:      cfg.HTTP.PublicOrigin,
		PlansPath:         cfg.HTTP.PlansPath,
		DefaultLanguage:   cfg.HTTP.Language,
		RequestTimeout:    cfg.HTTP.RequestTimeout,
		Limiter:           limiter,
		InitiatePerMinute: cfg.HTTP.InitiatePerMinute,
	}, logger)
	if err := srv.Validate(); err != nil {
		logger.Fatal().Err(err).Str("language", cfg.HTTP.Language).Msg("http")
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	// ---- Workers ----
	var wg sync.WaitGroup
	for _, w := range []interface{ Run(context.Context) error }{
		sched.NewIntentExpiryWorker(cfg.Payment.SweepInterval, paymentUC, logger),
		sched.NewPaymentReconciler(paymentUC, cfg.Payment.SweepInterval, logger),
	} {
		wg.Add(1)
		go func(w interface{ Run(context.Context) error }) {
			defer wg.Done()
			_ = w.Run(ctx)
		}(w)
	}

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	paymentUC.StopWatches(shutdownCtx)
	wg.Wait()
	eventPool.Stop()
	logger.Info().Msg("bye")
}

// buildProviders registers every provider with a base URL; in dev mode the
// missing ones are stubbed so each flow can be clicked through locally.
func buildProviders(cfg *config.Config, logger *zerolog.Logger) *payAdapters.Registry {
	p := cfg.Payment
	timeout := p.InitiationTimeout
	var adapters []adapter.ProviderAdapter

	add := func(kind model.ProviderKind, pc config.ProviderConfig, real func() adapter.ProviderAdapter) {
		switch {
		case pc.BaseURL != "":
			adapters = append(adapters, real())
		case cfg.Runtime.Dev:
			noop := payAdapters.NewNoopProvider(kind)
			noop.WebhookSecret = pc.WebhookSecret
			adapters = append(adapters, noop)
			logger.Warn().Str("provider", string(kind)).Msg("provider stubbed")
		}
	}
	add(model.ProviderCardRedirect, p.Card, func() adapter.ProviderAdapter { return payAdapters.NewCardRedirect(p.Card, timeout, logger) })
	add(model.ProviderWalletRedirect, p.WalletRedirect, func() adapter.ProviderAdapter {
		return payAdapters.NewWalletRedirect(p.WalletRedirect, timeout, logger)
	})
	add(model.ProviderWalletQR, p.WalletQR, func() adapter.ProviderAdapter { return payAdapters.NewWalletQR(p.WalletQR, timeout, logger) })

	if len(adapters) == 0 {
		logger.Fatal().Msg("no payment provider configured")
	}
	return payAdapters.NewRegistry(adapters...)
}
