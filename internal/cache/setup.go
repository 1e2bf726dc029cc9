package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gestaozabele/gestao-escolar/internal/config"
)

// SEDCaches agrupa os caches de respostas e de tokens sobre o mesmo store.
type SEDCaches struct {
	Responses *Cache
	Tokens    *Cache
	// Redis é nil quando o store é em memória.
	Redis *redis.Client
}

// OpenSED cria os dois caches conforme SED_CACHE_STORE.
func OpenSED(ctx context.Context, cfg config.SEDConfig, redisURL string) (*SEDCaches, error) {
	var (
		store       Store
		redisClient *redis.Client
	)

	switch cfg.CacheStore {
	case config.StoreRedis:
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("redis parse: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		store = NewRedisStore(redisClient)
	default:
		mem, err := NewMemoryStore(cfg.CacheMaxEntries)
		if err != nil {
			return nil, err
		}
		store = mem
	}

	caches := &SEDCaches{Redis: redisClient}
	var err error
	if caches.Responses, err = New(store, cfg.CachePrefix, cfg.CacheTTL); err != nil {
		_ = caches.Close()
		return nil, err
	}
	if caches.Tokens, err = New(store, cfg.TokenCachePrefix, cfg.TokenDefaultLifetime); err != nil {
		_ = caches.Close()
		return nil, err
	}
	return caches, nil
}

// Shared indica se o cache é visto por outras instâncias da API.
func (c *SEDCaches) Shared() bool {
	return c.Redis != nil
}

// Close libera a conexão com o Redis, se houver.
func (c *SEDCaches) Close() error {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.Close()
}
