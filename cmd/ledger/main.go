package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/config"
	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/handler"
	"github.com/boddenberg/monety-ledger-go/internal/infra/cache"
	"github.com/boddenberg/monety-ledger-go/internal/infra/memstore"
	"github.com/boddenberg/monety-ledger-go/internal/infra/observability"
	"github.com/boddenberg/monety-ledger-go/internal/infra/pixgateway"
	"github.com/boddenberg/monety-ledger-go/internal/infra/redisstore"
	"github.com/boddenberg/monety-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/monety-ledger-go/internal/infra/supabase"
	"github.com/boddenberg/monety-ledger-go/internal/ledger"
	"github.com/boddenberg/monety-ledger-go/internal/port"
	"github.com/boddenberg/monety-ledger-go/internal/service"
)

// stores is the record store chosen by STORE_BACKEND.
type stores struct {
	users  port.UserStore
	creds  port.CredentialStore
	replay port.Cache[domain.Withdrawal]
	close  func()
}

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFile)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("pix_gateway", cfg.PixGatewayURL != ""),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("idempotency_ttl", cfg.IdempotencyTTL),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.String("timezone", cfg.Timezone),
	)

	// --- Tracing ---
	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(context.Background(), cfg.OTLPEndpoint, "monety-ledger")
		if err != nil {
			logger.Fatal("failed to init tracer", zap.Error(err))
		}
		defer shutdown(context.Background())
	}

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	st, err := newStores(cfg, httpClient, resilienceCfg, logger)
	if err != nil {
		logger.Fatal("failed to init store", zap.Error(err))
	}
	defer st.close()

	gateway := newGateway(cfg, httpClient, resilienceCfg, logger)

	clock, err := ledger.NewSystemClock(cfg.Timezone)
	if err != nil {
		logger.Fatal("failed to load timezone", zap.Error(err))
	}

	// --- Services ---
	ledgerSvc := service.NewLedgerService(st.users, gateway, st.replay, clock, nil, resilienceCfg, metrics, logger)
	authSvc := service.NewAuthService(st.users, st.creds, ledgerSvc, clock, resilienceCfg, cfg.JWTSecret, cfg.JWTAccessTTL, logger)
	adminSvc := service.NewAdminService(st.users, ledgerSvc, clock, metrics, logger)

	if cfg.DailyResetCron != "" {
		job, err := service.NewDailyResetJob(st.users, cfg.DailyResetCron, clock.Loc, logger)
		if err != nil {
			logger.Fatal("failed to schedule daily reset", zap.Error(err))
		}
		job.Start()
		defer job.Stop()
		logger.Info("daily reset scheduled", zap.String("cron", cfg.DailyResetCron))
	}

	// --- Router ---
	router := handler.NewRouter(
		handler.Services{Ledger: ledgerSvc, Auth: authSvc, Admin: adminSvc, Store: st.users},
		handler.Secrets{Webhook: cfg.WebhookSecret, Admin: cfg.AdminToken},
		metrics,
		logger,
	)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newStores(cfg *config.Config, httpClient *http.Client, resilienceCfg resilience.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		rdb, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.MaxConcurrency,
			MinIdleConns: 2,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.HTTPTimeout,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("using Redis as record store", zap.String("addr", cfg.RedisAddr))

		store := redisstore.New(rdb, logger)
		return &stores{
			users:  store,
			creds:  store,
			replay: cache.NewRedis[domain.Withdrawal](rdb, "idempotency:withdrawal:", cfg.IdempotencyTTL, logger),
			close:  func() { closeRedis(rdb, logger) },
		}, nil

	case config.StoreSupabase:
		logger.Info("using Supabase as record store", zap.String("supabase_url", cfg.SupabaseURL))

		cb := resilience.NewCircuitBreaker("supabase", supabase.IsExpected)
		client := supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceKey, cb, resilienceCfg, logger)
		store := supabase.NewUserStore(client)
		replay := cache.New[domain.Withdrawal](cfg.IdempotencyTTL)
		return &stores{users: store, creds: store, replay: replay, close: replay.Close}, nil

	default:
		logger.Warn("using in-memory record store; data is lost on restart")

		store := memstore.New()
		replay := cache.New[domain.Withdrawal](cfg.IdempotencyTTL)
		return &stores{users: store, creds: store, replay: replay, close: replay.Close}, nil
	}
}

func newGateway(cfg *config.Config, httpClient *http.Client, resilienceCfg resilience.Config, logger *zap.Logger) port.PaymentGateway {
	if cfg.PixGatewayURL == "" {
		logger.Warn("PIX_GATEWAY_URL not set: issuing PIX codes locally")
		return pixgateway.NewLocal(logger)
	}
	logger.Info("using remote PIX gateway", zap.String("url", cfg.PixGatewayURL))
	cb := resilience.NewCircuitBreaker("pixgateway", resilience.IsPermanent)
	return pixgateway.NewClient(httpClient, cfg.PixGatewayURL, cb, resilienceCfg, logger)
}

func closeRedis(rdb *redis.Client, logger *zap.Logger) {
	if err := rdb.Close(); err != nil {
		logger.Warn("redis close failed", zap.Error(err))
	}
}
