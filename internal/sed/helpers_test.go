package sed

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gestaozabele/gestao-escolar/internal/cache"
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

// newTestCaches cria caches de respostas e tokens sobre o mesmo store em memória.
func newTestCaches(t *testing.T, clock *fakeClock) (responses, tokens *cache.Cache) {
	t.Helper()
	store, err := cache.NewMemoryStore(1000, cache.WithMemoryClock(clock.Now))
	require.NoError(t, err)
	responses, err = cache.New(store, "sed_api:", 300*time.Second, cache.WithClock(clock.Now))
	require.NoError(t, err)
	tokens, err = cache.New(store, "sed_token:", time.Hour, cache.WithClock(clock.Now))
	require.NoError(t, err)
	return responses, tokens
}

func testPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.Delay = time.Millisecond
	return p
}
