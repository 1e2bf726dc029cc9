package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore mantém entradas em um LRU limitado do processo.
type MemoryStore struct {
	lru *lru.Cache[string, memoryItem]
	now Clock
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryOption ajusta o MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock substitui o relógio usado para expirar entradas.
func WithMemoryClock(now Clock) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore cria store em memória com no máximo size entradas.
func NewMemoryStore(size int, opts ...MemoryOption) (*MemoryStore, error) {
	if size <= 0 {
		size = 10000
	}
	l, err := lru.New[string, memoryItem](size)
	if err != nil {
		return nil, err
	}
	s := &MemoryStore{lru: l, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		s.lru.Remove(key)
		return nil, false, nil
	}
	return item.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.lru.Add(key, item)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	for _, key := range s.lru.Keys() {
		if strings.HasPrefix(key, prefix) && s.lru.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

// Len devolve o número de entradas armazenadas, inclusive as já expiradas.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
