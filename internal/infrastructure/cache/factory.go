package cache

import (
	"context"
	"fmt"

	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// DedupStoreFactory creates claim stores based on configuration
type DedupStoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// DedupStoreFactoryOption is a functional option for configuring the factory
type DedupStoreFactoryOption func(*DedupStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) DedupStoreFactoryOption {
	return func(f *DedupStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory store when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) DedupStoreFactoryOption {
	return func(f *DedupStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewDedupStoreFactory creates a new factory
func NewDedupStoreFactory(cfg config.RedisConfig, opts ...DedupStoreFactoryOption) *DedupStoreFactory {
	f := &DedupStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateStore returns the Redis store when Redis is enabled and reachable,
// otherwise the in-memory store if fallback is allowed. The alert history
// table stays authoritative either way; the claim store only narrows races.
func (f *DedupStoreFactory) CreateStore(ctx context.Context) (shared.DedupStore, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("redis disabled, using in-memory alert claim store")
		return NewInMemoryDedupStore(), nil
	}

	store, err := NewRedisDedupStore(ctx, RedisConfig{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("using Redis alert claim store", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for alert claims but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory alert claim store. "+
		"Concurrent instances may race on alert inserts; the unique index still rejects duplicates.",
		zap.Error(err),
	)
	return NewInMemoryDedupStore(), nil
}
