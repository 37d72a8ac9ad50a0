package main

import (
	"context"
	"fmt"

	"binstatus/internal/adapter/breaker"
	"binstatus/internal/adapter/dynamodb"
	"binstatus/internal/adapter/event"
	"binstatus/internal/adapter/memory"
	"binstatus/internal/adapter/postgres"
	"binstatus/internal/adapter/redis"
	"binstatus/internal/app"
	"binstatus/internal/config"
	"binstatus/internal/domain"
	"binstatus/internal/metrics"

	"github.com/rs/zerolog/log"
)

// newRepository builds the configured store, wrapped in the circuit breaker
// when enabled and in metrics when m is non-nil. The returned func releases
// connections.
func newRepository(ctx context.Context, cfg config.Config, m *metrics.Metrics) (domain.AverageRepository, func() error, error) {
	var (
		repo    domain.AverageRepository
		closeFn = func() error { return nil }
	)

	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		client, err := dynamodb.NewClient(ctx, cfg.Region, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, err
		}
		var opts []dynamodb.Option
		if cfg.OptimisticLocking {
			opts = append(opts, dynamodb.WithOptimisticLocking(cfg.LockMaxAttempts))
		}
		r, err := dynamodb.New(client, cfg.BinsTable, cfg.ReportsTable, opts...)
		if err != nil {
			return nil, nil, err
		}
		repo = r

	case config.BackendRedis:
		client, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		r, err := redis.New(client, cfg.BinsTable, cfg.ReportsTable)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		repo, closeFn = r, client.Close

	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.BinsTable, cfg.ReportsTable)
		if err != nil {
			return nil, nil, err
		}
		repo, closeFn = db, db.Close

	case config.BackendMemory:
		repo = memory.New()

	default:
		return nil, nil, &domain.ConfigurationError{Key: "STORE_BACKEND", Msg: fmt.Sprintf("unknown backend %q", cfg.StoreBackend)}
	}

	log.Info().
		Str("backend", cfg.StoreBackend).
		Str("bins_table", cfg.BinsTable).
		Str("reports_table", cfg.ReportsTable).
		Bool("local", cfg.IsLocalDevelopment()).
		Msg("store ready")

	if cfg.BreakerEnabled {
		repo = breaker.New(repo, cfg.BreakerMaxFailures, cfg.BreakerOpenTimeout)
	}
	if m != nil {
		repo = m.Wrap(repo)
	}
	return repo, closeFn, nil
}

// newHandler wires the update service behind the event handler.
func newHandler(cfg config.Config, repo domain.AverageRepository, m *metrics.Metrics) *event.Handler {
	opts := []event.Option{event.WithTimeout(cfg.StoreTimeout)}
	if m != nil {
		opts = append(opts, event.WithObserver(m.ObserveEvent))
	}
	return event.NewHandler(app.NewUpdateService(repo), opts...)
}
