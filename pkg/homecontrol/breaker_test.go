package homecontrol

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAPI fails every call and counts how many reach it.
type countingAPI struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingAPI) bump() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *countingAPI) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *countingAPI) Plants(ctx context.Context) ([]Plant, error) {
	return nil, c.bump()
}

func (c *countingAPI) Modules(ctx context.Context, plantID string) ([]Module, error) {
	return nil, c.bump()
}

func (c *countingAPI) SetState(ctx context.Context, moduleID string, on bool, level *int) error {
	return c.bump()
}

func (c *countingAPI) GetState(ctx context.Context, moduleID string) (Status, error) {
	return Status{}, c.bump()
}

// TestCircuitBreaker_OpensAfterConsecutiveFailures: once open, calls no
// longer reach the API
func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	underlying := &countingAPI{err: assert.AnError}
	api := NewAPIWithCircuitBreaker(underlying, CircuitBreakerConfig{
		MaxConsecutiveFailures: 2,
		Timeout:                time.Minute,
	})

	_, err := api.Plants(context.Background())
	assert.Error(t, err)
	_, err = api.Plants(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, underlying.count())

	_, err = api.Plants(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 2, underlying.count(), "open breaker must not call through")
}

// TestCircuitBreaker_PassesThroughSuccess
func TestCircuitBreaker_PassesThroughSuccess(t *testing.T) {
	underlying := &countingAPI{}
	api := NewAPIWithCircuitBreaker(underlying, DefaultCircuitBreakerConfig())

	require.NoError(t, api.SetState(context.Background(), "m1", true, nil))

	status, err := api.GetState(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, status.On)
	assert.Equal(t, 2, underlying.count())
}

// TestCircuitBreaker_PreservesUnderlyingError: while closed, the caller sees
// the API's own error
func TestCircuitBreaker_PreservesUnderlyingError(t *testing.T) {
	underlying := &countingAPI{err: assert.AnError}
	api := NewAPIWithCircuitBreaker(underlying, DefaultCircuitBreakerConfig())

	err := api.SetState(context.Background(), "m1", true, nil)
	assert.ErrorIs(t, err, assert.AnError)
}
