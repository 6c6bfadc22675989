package cache

import (
	"fmt"
	"io"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Cache is a billing.ResultCache that owns resources
type Cache interface {
	billing.ResultCache
	io.Closer
}

// ResultCacheFactory creates result caches based on configuration
type ResultCacheFactory struct {
	cacheConfig           config.CacheConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	cleanupInterval       time.Duration
}

// ResultCacheFactoryOption is a functional option for configuring the factory
type ResultCacheFactoryOption func(*ResultCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) ResultCacheFactoryOption {
	return func(f *ResultCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the
// in-memory cache. Default is true.
func WithInMemoryFallback(allow bool) ResultCacheFactoryOption {
	return func(f *ResultCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithCleanupInterval sets the janitor interval of in-memory caches
func WithCleanupInterval(interval time.Duration) ResultCacheFactoryOption {
	return func(f *ResultCacheFactory) {
		f.cleanupInterval = interval
	}
}

// NewResultCacheFactory creates a new factory
func NewResultCacheFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...ResultCacheFactoryOption) *ResultCacheFactory {
	f := &ResultCacheFactory{
		cacheConfig:           cacheCfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		cleanupInterval:       5 * time.Minute,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateRedisCache creates a Redis-backed cache
func (f *ResultCacheFactory) CreateRedisCache() (*RedisResultCache, error) {
	c, err := NewRedisResultCache(RedisConfig{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis result cache: %w", err)
	}
	return c, nil
}

// CreateInMemoryCache creates a process-local cache
func (f *ResultCacheFactory) CreateInMemoryCache() *InMemoryResultCache {
	return NewInMemoryResultCache(f.cleanupInterval)
}

// CreateCache picks the configured driver. With the redis driver an
// unreachable server falls back to memory when fallback is allowed.
func (f *ResultCacheFactory) CreateCache() (Cache, error) {
	if f.cacheConfig.Driver == "memory" {
		f.logger.Info("Using in-memory result cache")
		return f.CreateInMemoryCache(), nil
	}

	c, err := f.CreateRedisCache()
	if err == nil {
		f.logger.Info("Using Redis result cache", zap.String("addr", f.redisConfig.Addr()))
		return c, nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for result cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory result cache",
		zap.String("addr", f.redisConfig.Addr()),
		zap.Error(err),
	)
	return f.CreateInMemoryCache(), nil
}
