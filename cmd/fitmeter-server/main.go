// Command fitmeter-server serves the meal planning and food scanning API with
// monthly quotas, streak tracking and optional Stripe billing.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	gcfirestore "cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/fitmeter/pkg/api"
	"github.com/mihaimyh/fitmeter/pkg/billing"
	billingprom "github.com/mihaimyh/fitmeter/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/fitmeter/pkg/billing/stripe"
	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
	zerologadapter "github.com/mihaimyh/fitmeter/pkg/fitmeter/logger/zerolog"
	prommetrics "github.com/mihaimyh/fitmeter/pkg/fitmeter/metrics/prometheus"
	"github.com/mihaimyh/fitmeter/pkg/inference/gemini"
	firestorestore "github.com/mihaimyh/fitmeter/storage/firestore"
	"github.com/mihaimyh/fitmeter/storage/memory"
	"github.com/mihaimyh/fitmeter/storage/postgres"
	redisstore "github.com/mihaimyh/fitmeter/storage/redis"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	zlog := newZerolog(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

func newZerolog(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var zlog zerolog.Logger
	if cfg.LogFormat == "console" {
		zlog = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		zlog = zerolog.New(os.Stdout)
	}
	return zlog.Level(level).With().Timestamp().Str("service", "fitmeter").Logger()
}

func run(ctx context.Context, cfg Config, zlog zerolog.Logger) error {
	logger := zerologadapter.NewLogger(zlog)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := prommetrics.NewMetrics(reg, cfg.MetricsNamespace)

	storage, closeStorage, err := openStorage(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer closeStorage()

	managerConfig := fitmeter.Config{
		Plans:           cfg.Plans(),
		StreakThreshold: cfg.StreakThreshold,
		Location:        cfg.Location(),
		Metrics:         metrics,
		Logger:          logger,
	}
	if cfg.CircuitBreakerThreshold > 0 {
		managerConfig.CircuitBreakerConfig = &fitmeter.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: cfg.CircuitBreakerThreshold,
			ResetTimeout:     cfg.CircuitBreakerReset,
		}
	}
	manager, err := fitmeter.NewManager(storage, managerConfig)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}

	model, err := gemini.New(gemini.Config{
		APIKey:            cfg.GeminiAPIKey,
		Model:             cfg.GeminiModel,
		RequestsPerSecond: cfg.GeminiRPS,
		Metrics:           metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create gemini client: %w", err)
	}

	var provider billing.Provider
	if cfg.BillingEnabled() {
		provider, err = stripe.NewProvider(stripe.Config{
			Config: billing.Config{
				Plans:         manager,
				WebhookSecret: cfg.StripeWebhookSecret,
				APIKey:        cfg.StripeAPIKey,
				Logger:        logger,
				Metrics:       billingprom.NewMetrics(reg, cfg.MetricsNamespace),
			},
			PremiumPriceID: cfg.StripePremiumPriceID,
		})
		if err != nil {
			return fmt.Errorf("failed to create stripe provider: %w", err)
		}
	}

	handler, err := api.NewHandler(api.Config{
		Manager:   manager,
		Generator: model,
		Analyzer:  model,
		Billing:   provider,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create API handler: %w", err)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(zlog))
	router.Use(middleware.Recoverer)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.Mount("/api", handler.Routes())

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// image analysis waits on the model
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info().
			Int("port", cfg.Port).
			Str("storage", cfg.StorageBackend).
			Bool("billing", provider != nil).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStorage builds the configured backend and a func releasing its resources
func openStorage(ctx context.Context, cfg Config, logger fitmeter.Logger,
	metrics fitmeter.Metrics) (fitmeter.Storage, func(), error) {
	switch cfg.StorageBackend {
	case BackendRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := goredis.NewClient(opts)
		rcfg := redisstore.DefaultConfig()
		rcfg.Logger = logger
		rcfg.Metrics = metrics
		s, err := redisstore.New(client, rcfg)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s, func() { _ = client.Close() }, nil

	case BackendFirestore:
		client, err := gcfirestore.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		s, err := firestorestore.New(client, firestorestore.Config{
			UsersCollection: cfg.FirestoreUsersCollection,
			MealsCollection: cfg.FirestoreMealsCollection,
			Logger:          logger,
			Metrics:         metrics,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s, func() { _ = client.Close() }, nil

	case BackendPostgres:
		pcfg := postgres.DefaultConfig()
		pcfg.ConnectionString = cfg.PostgresDSN
		pcfg.Logger = logger
		pcfg.Metrics = metrics
		s, err := postgres.New(ctx, pcfg)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return memory.New(), func() {}, nil
	}
}

// requestLogger logs one line per request through zerolog
func requestLogger(zlog zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				event := zlog.Info()
				if ww.Status() >= http.StatusInternalServerError {
					event = zlog.Warn()
				}
				event.
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
