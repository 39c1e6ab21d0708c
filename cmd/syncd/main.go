package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bloomsync/internal/api"
	"bloomsync/internal/config"
	"bloomsync/internal/connectivity"
	"bloomsync/internal/events"
	"bloomsync/internal/logging"
	"bloomsync/internal/metrics"
	"bloomsync/internal/queue"
	"bloomsync/internal/remote"
	"bloomsync/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	st, err := buildStore(cfg, &logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	remoteClient := remote.NewClient(cfg.Remote)
	monitor := connectivity.NewMonitor(cfg.Connectivity, &logger)
	go monitor.Start(ctx)

	bus := events.NewEventBus()
	subscribeSyncEvents(bus, &logger)

	q, err := queue.New(ctx, st, remoteClient, monitor, queue.Options{
		Policy: queue.RetryPolicy{
			MaxAttempts:   cfg.Queue.MaxAttempts,
			InitialDelay:  cfg.Queue.InitialDelay(),
			MaxDelay:      cfg.Queue.MaxDelay(),
			BackoffFactor: cfg.Queue.BackoffFactor,
		},
		ItemTimeout:   cfg.Queue.ItemTimeout(),
		DrainInterval: cfg.Queue.DrainInterval(),
		Bus:           bus,
		Logger:        &logger,
	})
	if err != nil {
		return err
	}

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, cfg.Exports, q, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("admin API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Monitoring.PrometheusEnabled {
		startMetrics(ctx, cfg, &logger)
	}

	q.Start(ctx)
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "syncd").Logger()

	return cfg, logger, closer, nil
}

// buildStore assembles the persistence backend. Durable backends get a
// memory fallback wrapper when configured, so a failing disk degrades the
// session instead of blocking writes.
func buildStore(cfg *config.Config, logger *zerolog.Logger) (store.Store, error) {
	var (
		primary store.Store
		err     error
	)

	switch cfg.Store.Backend {
	case "sqlite":
		primary, err = store.NewSQLiteStore(cfg.Store.Path)
	case "file":
		primary, err = store.NewFileStore(cfg.Store.Path)
	case "redis":
		client := store.NewRedisClient(cfg.Redis)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if pingErr := store.Ping(pingCtx, client); pingErr != nil {
			logger.Warn().Err(pingErr).Msg("redis unreachable at startup")
		}
		primary = store.NewRedisStore(client)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Store.MemoryFallback {
		return store.NewFailoverStore(primary, store.NewMemoryStore(), logger), nil
	}
	return primary, nil
}

func subscribeSyncEvents(bus *events.EventBus, logger *zerolog.Logger) {
	l := logger.With().Str("component", "events").Logger()

	bus.Subscribe(events.EventMutationDeadLetter, func(e *events.Event) error {
		l.Warn().RawJSON("event", e.Payload).Msg("mutation dead-lettered")
		return nil
	})
	bus.Subscribe(events.EventStoreDegraded, func(e *events.Event) error {
		l.Warn().RawJSON("event", e.Payload).Msg("store degraded")
		return nil
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
