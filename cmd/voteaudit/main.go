package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/vncsmyrnk/places/internal/adapters/repository/postgres"
	redisadapter "github.com/vncsmyrnk/places/internal/adapters/repository/redis"
	"github.com/vncsmyrnk/places/internal/config"
	"github.com/vncsmyrnk/places/internal/core/ports"
	"github.com/vncsmyrnk/places/internal/core/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	os.Exit(run(os.Args[1:], logger))
}

// run returns the process exit code: 0 when every counter matches its
// votes, 1 on mismatches or failures.
func run(args []string, logger *slog.Logger) int {
	cfg, err := config.Load(args)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	// Use a timeout for the job execution to prevent it from hanging indefinitely
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ledger, closeLedger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.Backend, "error", err)
		return 1
	}
	defer closeLedger()

	logger.Info("starting vote count audit", "backend", cfg.Backend)

	mismatches, err := services.NewAuditService(ledger, logger).AuditVoteCounts(ctx)
	if err != nil {
		logger.Error("vote count audit failed", "error", err)
		return 1
	}
	if len(mismatches) > 0 {
		logger.Error("stored vote counts differ from votes", "items", len(mismatches))
		return 1
	}

	logger.Info("vote count audit completed successfully")
	return 0
}

func openLedger(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.VoteLedger, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewVoteLedger(db), func() { db.Close() }, nil
	case config.BackendRedis:
		client, err := redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store := redisadapter.NewStore(client, ports.ImmediateRetryPolicy(1), logger)
		return store, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("backend %q keeps no durable votes to audit", cfg.Backend)
	}
}
