package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Cache guarda payloads JSON com TTL sob um prefixo global.
// Uma entrada nunca é servida depois de stored_at + ttl, qualquer que seja o store.
type Cache struct {
	store      Store
	prefix     string
	defaultTTL time.Duration
	now        Clock
}

type entry struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt int64           `json:"stored_at"`
	TTL      int64           `json:"ttl"`
}

// Option ajusta o Cache.
type Option func(*Cache)

// WithClock substitui o relógio usado para validar o TTL.
func WithClock(now Clock) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New cria cache sobre store; chaves recebidas são sempre prefixadas por prefix.
func New(store Store, prefix string, defaultTTL time.Duration, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, errors.New("cache: store obrigatório")
	}
	if prefix == "" {
		return nil, errors.New("cache: prefixo obrigatório")
	}
	if defaultTTL <= 0 {
		defaultTTL = 300 * time.Second
	}
	c := &Cache{store: store, prefix: prefix, defaultTTL: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Prefix devolve o namespace global das chaves.
func (c *Cache) Prefix() string {
	return c.prefix
}

// DefaultTTL devolve o TTL aplicado quando Put recebe ttl <= 0.
func (c *Cache) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get devolve o payload armazenado; ok=false indica ausência ou expiração.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	raw, ok, err := c.store.Get(ctx, c.prefix+key)
	if err != nil || !ok {
		return nil, false, err
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		_ = c.store.Delete(ctx, c.prefix+key)
		return nil, false, nil
	}

	expiresAt := time.Unix(0, e.StoredAt).Add(time.Duration(e.TTL))
	if !c.now().Before(expiresAt) {
		_ = c.store.Delete(ctx, c.prefix+key)
		return nil, false, nil
	}
	return e.Payload, true, nil
}

// Put substitui a entrada de key.
func (c *Cache) Put(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if !json.Valid(payload) {
		return fmt.Errorf("cache: payload inválido para %s", key)
	}
	raw, err := json.Marshal(entry{Payload: payload, StoredAt: c.now().UnixNano(), TTL: int64(ttl)})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.prefix+key, raw, ttl)
}

// Forget remove uma única chave.
func (c *Cache) Forget(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.prefix+key)
}

// ForgetPrefix remove todas as chaves que começam com prefix (relativo ao namespace).
func (c *Cache) ForgetPrefix(ctx context.Context, prefix string) (int, error) {
	return c.store.DeletePrefix(ctx, c.prefix+prefix)
}

// FlushAll remove tudo sob o namespace deste cache, preservando dados alheios no store.
func (c *Cache) FlushAll(ctx context.Context) (int, error) {
	return c.store.DeletePrefix(ctx, c.prefix)
}
