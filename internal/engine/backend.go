package engine

import (
	"context"
	"fmt"

	"session-trust-engine/internal/config"
	"session-trust-engine/internal/db"
	"session-trust-engine/internal/platform/redisstore"
)

// Backend is an opened storage backend.
type Backend struct {
	Name  string
	Repos Repositories
	// Ping reports storage reachability. Nil for the memory backend.
	Ping func(ctx context.Context) error
	// Close releases connections.
	Close func() error
}

// OpenBackend connects the backend selected by cfg.StoreBackend.
func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &Backend{
			Name:  cfg.StoreBackend,
			Repos: PostgresRepositories(sqlDB),
			Ping:  sqlDB.PingContext,
			Close: sqlDB.Close,
		}, nil
	case config.BackendRedis:
		client, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		return &Backend{
			Name:  cfg.StoreBackend,
			Repos: RedisRepositories(client, cfg.RedisKeyPrefix, nil),
			Ping:  func(ctx context.Context) error { return client.Ping(ctx).Err() },
			Close: client.Close,
		}, nil
	case config.BackendMemory, "":
		return &Backend{
			Name:  config.BackendMemory,
			Repos: MemoryRepositories(),
			Close: func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
