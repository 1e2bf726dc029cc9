package sed

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	calls := 0
	var retried []int
	policy := testPolicy()
	policy.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	got, err := Execute(context.Background(), policy, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &UpstreamError{Status: 503}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestExecuteExhaustsRetryableStatus(t *testing.T) {
	calls := 0
	var retried []int
	policy := testPolicy()
	policy.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	_, err := Execute(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		return 0, &UpstreamError{Status: 502, Body: []byte(`{"msg":"gateway"}`)}
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried, "a falha final não conta como nova tentativa")
	sedErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindRequestFailed, sedErr.Kind)
	assert.Equal(t, 502, sedErr.Status)
	assert.Equal(t, `{"msg":"gateway"}`, sedErr.Context["response_body"])
	assert.Equal(t, 3, sedErr.Context["attempts"])
}

func TestExecuteDoesNotRetryPermanentFailures(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 422} {
		calls := 0
		_, err := Execute(context.Background(), testPolicy(), func(context.Context) (int, error) {
			calls++
			return 0, &UpstreamError{Status: status}
		})
		assert.Equal(t, 1, calls, "status %d", status)

		var upstream *UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, status, upstream.Status)
	}

	calls := 0
	_, err := Execute(context.Background(), testPolicy(), func(context.Context) (int, error) {
		calls++
		return 0, NewError(KindInvalidParameter, 0, "x", nil, nil)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindInvalidParameter, KindOf(err))
}

func TestExecuteTransportFailuresBecomeNetworkError(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), testPolicy(), func(context.Context) (int, error) {
		calls++
		return 0, &TransportError{Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}
	})
	assert.Equal(t, 3, calls)
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestExecuteRateLimitExhausted(t *testing.T) {
	_, err := Execute(context.Background(), testPolicy(), func(context.Context) (int, error) {
		return 0, &UpstreamError{Status: 429}
	})
	assert.Equal(t, KindRateLimitExceeded, KindOf(err))
	assert.Equal(t, 429, Classify(err).Status)
}

func TestExecuteSingleAttemptPolicy(t *testing.T) {
	policy := testPolicy()
	policy.MaxAttempts = 1
	calls := 0
	_, err := Execute(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		return 0, &UpstreamError{Status: 503}
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindRequestFailed, KindOf(err))
}

func TestBackoffIsLinear(t *testing.T) {
	p := RetryPolicy{Delay: time.Second}
	assert.Equal(t, time.Second, p.BackoffFor(1))
	assert.Equal(t, 2*time.Second, p.BackoffFor(2))
	assert.Equal(t, 3*time.Second, p.BackoffFor(3))
	assert.Equal(t, time.Second, p.BackoffFor(0))
}
