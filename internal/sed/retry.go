package sed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
)

const maxBodyInContext = 4096

// UpstreamError é uma resposta HTTP não-2xx da SED.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("sed upstream status %d", e.Status)
}

// TransportError é uma falha antes de obter resposta (DNS, conexão recusada, reset, timeout).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "sed transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RetryPolicy define tentativas e espera linear entre elas.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	StatusCodes []int
	// OnRetry é chamado antes de cada nova tentativa, com a tentativa que falhou (1-based).
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy devolve 3 tentativas, 1s de espera e os status transitórios usuais.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Second,
		StatusCodes: []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
		},
	}
}

// BackoffFor devolve a espera antes da tentativa seguinte a attempt.
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Delay * time.Duration(attempt)
}

// Retryable indica se err deve gerar nova tentativa.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil || !retry.IsRecoverable(err) {
		return false
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return p.retryableStatus(upstream.Status)
	}
	var transport *TransportError
	return errors.As(err, &transport)
}

func (p RetryPolicy) retryableStatus(status int) bool {
	for _, code := range p.StatusCodes {
		if code == status {
			return true
		}
	}
	return false
}

// Execute roda op com a política. Falhas transitórias esgotadas viram RequestFailed,
// RateLimitExceeded ou NetworkError; as demais voltam sem alteração após uma única chamada.
func Execute[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	calls := 0
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.RetryIf(policy.Retryable),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return policy.BackoffFor(int(n))
		}),
		retry.LastErrorOnly(true),
	}
	if policy.OnRetry != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			// a última tentativa falhou e não haverá espera
			if int(n)+1 >= attempts {
				return
			}
			policy.OnRetry(int(n)+1, err)
		}))
	}

	result, err := retry.NewWithData[T](opts...).Do(func() (T, error) {
		calls++
		return op(ctx)
	})
	if err == nil {
		return result, nil
	}

	var zero T
	if !policy.Retryable(err) {
		return zero, err
	}
	return zero, exhausted(err, calls)
}

func exhausted(err error, calls int) error {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		ctx := map[string]any{
			"upstream_status": upstream.Status,
			"response_body":   truncateBody(upstream.Body),
			"attempts":        calls,
		}
		if upstream.Status == http.StatusTooManyRequests {
			return NewError(KindRateLimitExceeded, 0, "limite de requisições da SED excedido", ctx, err)
		}
		return NewError(KindRequestFailed, upstream.Status, "falha na requisição à SED", ctx, err)
	}
	return NewError(KindNetwork, 0, "falha de comunicação com a SED", map[string]any{"attempts": calls}, err)
}

func truncateBody(body []byte) string {
	if len(body) > maxBodyInContext {
		return string(body[:maxBodyInContext])
	}
	return string(body)
}
