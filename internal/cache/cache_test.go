package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestaozabele/gestao-escolar/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newMemoryCache(t *testing.T, clock *fakeClock) *Cache {
	t.Helper()
	store, err := NewMemoryStore(100, WithMemoryClock(clock.Now))
	require.NoError(t, err)
	c, err := New(store, "sed_api:", 300*time.Second, WithClock(clock.Now))
	require.NoError(t, err)
	return c
}

func newRedisCache(t *testing.T, clock *fakeClock) (*Cache, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c, err := New(NewRedisStore(client), "sed_api:", 300*time.Second, WithClock(clock.Now))
	require.NoError(t, err)
	return c, mr, client
}

func TestCacheTTLBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newMemoryCache(t, clock)

	payload := json.RawMessage(`{"outClasses":[{"outNumClasse":"123"}]}`)
	require.NoError(t, c.Put(ctx, "tenant:7:classes:abc", payload, 300*time.Second))

	clock.Advance(299 * time.Second)
	got, ok, err := c.Get(ctx, "tenant:7:classes:abc")
	require.NoError(t, err)
	require.True(t, ok, "entrada deve existir em t0+T-1")
	assert.JSONEq(t, string(payload), string(got))

	clock.Advance(time.Second)
	_, ok, err = c.Get(ctx, "tenant:7:classes:abc")
	require.NoError(t, err)
	assert.False(t, ok, "entrada deve expirar em t0+T")

	clock.Advance(time.Hour)
	_, ok, _ = c.Get(ctx, "tenant:7:classes:abc")
	assert.False(t, ok)
}

func TestCacheDefaultTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newMemoryCache(t, clock)

	require.NoError(t, c.Put(ctx, "k", json.RawMessage(`1`), 0))
	clock.Advance(c.DefaultTTL() - time.Nanosecond)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
	clock.Advance(time.Nanosecond)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCacheRejectsInvalidPayload(t *testing.T) {
	c := newMemoryCache(t, newFakeClock())
	err := c.Put(context.Background(), "k", json.RawMessage(`{quebrado`), time.Minute)
	assert.Error(t, err)
}

func TestCacheForget(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t, newFakeClock())

	require.NoError(t, c.Put(ctx, "a", json.RawMessage(`"a"`), time.Minute))
	require.NoError(t, c.Forget(ctx, "a"))
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
}

func prefixScenario(t *testing.T, c *Cache) {
	t.Helper()
	ctx := context.Background()

	prefixed := []string{"user:42:tenant:7:escolas:1", "user:42:tenant:7:classes:2", "user:42:tenant:9:alunos:3"}
	others := []string{"user:420:tenant:7:escolas:1", "tenant:7:escolas:1", "user:43:tenant:7:classes:2"}

	for _, k := range append(append([]string{}, prefixed...), others...) {
		require.NoError(t, c.Put(ctx, k, json.RawMessage(`{"k":"`+k+`"}`), time.Minute))
	}

	removed, err := c.ForgetPrefix(ctx, "user:42:")
	require.NoError(t, err)
	assert.Equal(t, len(prefixed), removed)

	for _, k := range prefixed {
		_, ok, err := c.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
	for _, k := range others {
		_, ok, err := c.Get(ctx, k)
		require.NoError(t, err)
		assert.True(t, ok, k)
	}
}

func TestCacheForgetPrefixMemory(t *testing.T) {
	prefixScenario(t, newMemoryCache(t, newFakeClock()))
}

func TestCacheForgetPrefixRedis(t *testing.T) {
	c, _, _ := newRedisCache(t, newFakeClock())
	prefixScenario(t, c)
}

func TestCacheFlushAllKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c, mr, client := newRedisCache(t, clock)

	require.NoError(t, client.Set(ctx, "refresh:backoffice:abc", "x", 0).Err())
	require.NoError(t, c.Put(ctx, "tenant:1:escolas:a", json.RawMessage(`[]`), time.Minute))
	require.NoError(t, c.Put(ctx, "tenant:2:escolas:b", json.RawMessage(`[]`), time.Minute))

	removed, err := c.FlushAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.True(t, mr.Exists("refresh:backoffice:abc"))
	assert.False(t, mr.Exists("sed_api:tenant:1:escolas:a"))
}

func TestRedisStoreExpiresNatively(t *testing.T) {
	ctx := context.Background()
	c, mr, _ := newRedisCache(t, newFakeClock())

	require.NoError(t, c.Put(ctx, "k", json.RawMessage(`true`), 10*time.Second))
	mr.FastForward(11 * time.Second)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreEscapesGlobPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client)

	require.NoError(t, store.Set(ctx, "a*b:1", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "axb:1", []byte("1"), 0))

	removed, err := store.DeletePrefix(ctx, "a*b:")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.True(t, mr.Exists("axb:1"))
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewRedisStore(client)
	mr.Close()

	_, _, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(2)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))
	_, _, _ = store.Get(ctx, "a")
	require.NoError(t, store.Set(ctx, "c", []byte("3"), time.Minute))

	_, ok, _ := store.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, store.Len())
}

func TestOpenSEDMemory(t *testing.T) {
	caches, err := OpenSED(context.Background(), config.SEDConfig{
		CacheStore:           config.StoreMemory,
		CachePrefix:          "sed_api:",
		TokenCachePrefix:     "sed_token:",
		CacheTTL:             time.Minute,
		TokenDefaultLifetime: time.Hour,
		CacheMaxEntries:      10,
	}, "")
	require.NoError(t, err)
	defer caches.Close()

	assert.False(t, caches.Shared())
	assert.Equal(t, "sed_api:", caches.Responses.Prefix())
	assert.Equal(t, time.Hour, caches.Tokens.DefaultTTL())
}

func TestOpenSEDRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	caches, err := OpenSED(context.Background(), config.SEDConfig{
		CacheStore:       config.StoreRedis,
		CachePrefix:      "sed_api:",
		TokenCachePrefix: "sed_token:",
	}, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer caches.Close()

	require.True(t, caches.Shared())
	require.NoError(t, caches.Responses.Put(context.Background(), "tenant:1:escolas:a", json.RawMessage(`[]`), time.Minute))
	assert.True(t, mr.Exists("sed_api:tenant:1:escolas:a"))
}
