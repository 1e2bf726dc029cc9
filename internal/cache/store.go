// Package cache implementa o cache de respostas da SED sobre um store chave/valor plugável.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable indica falha de comunicação com o backend do cache.
var ErrStoreUnavailable = errors.New("cache: store indisponível")

// Store é o backend chave/valor usado pelo cache. Escritas substituem a entrada inteira.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix remove todas as chaves iniciadas por prefix e devolve quantas removeu.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Clock permite controlar o tempo em testes.
type Clock func() time.Time
