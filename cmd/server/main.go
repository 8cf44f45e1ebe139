package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vncsmyrnk/places/internal/adapters/event"
	"github.com/vncsmyrnk/places/internal/adapters/handler/http"
	"github.com/vncsmyrnk/places/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/places/internal/adapters/repository/postgres"
	redisadapter "github.com/vncsmyrnk/places/internal/adapters/repository/redis"
	"github.com/vncsmyrnk/places/internal/config"
	"github.com/vncsmyrnk/places/internal/core/ports"
	"github.com/vncsmyrnk/places/internal/core/services"
	"github.com/vncsmyrnk/places/internal/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	policy := ports.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.TxMaxAttempts

	store, closeStore, err := openStore(ctx, cfg, policy, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, "places")

	var publisher ports.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		logger.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	items := services.NewItemService(store, publisher, m, logger)
	votes := services.NewVoteService(store, publisher, m, logger)
	sessions := services.NewSessions(items, votes)
	reconciler := services.NewListReconciler(store, m, logger)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := http.NewLiveHub(reconciler, cfg.CORSOrigins, logger)
	go hub.Run(hubCtx)

	reconciler.OnListUpdated(hub.PublishSnapshot)
	reconciler.OnStateChanged(hub.PublishState)
	if err := reconciler.Activate(ctx); err != nil {
		return fmt.Errorf("failed to load the item list: %w", err)
	}
	defer reconciler.Deactivate()

	handler := http.NewHandler(
		http.NewItemHandler(reconciler, sessions),
		http.NewVoteHandler(sessions),
		hub,
		http.RouterConfig{
			AllowedOrigins: cfg.CORSOrigins,
			SecureCookies:  cfg.SecureCookies,
			Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		},
	)
	server := &stdhttp.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr, "backend", cfg.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("gracefully shutting down")

	// live clients hold hijacked connections that Shutdown does not wait for
	stopHub()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, policy ports.RetryPolicy, logger *slog.Logger) (ports.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		dsn := cfg.PostgresDSN()
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to reach postgres: %w", err)
		}
		return postgres.NewStore(db, dsn, policy, logger), func() { db.Close() }, nil

	case config.BackendRedis:
		client, err := redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return redisadapter.NewStore(client, policy, logger), func() { client.Close() }, nil

	default:
		return memory.NewStore(memory.WithRetryPolicy(policy)), func() {}, nil
	}
}
