package homecontrol

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig configures the circuit breaker behavior
type CircuitBreakerConfig struct {
	// MaxConsecutiveFailures is the number of consecutive failures before opening
	MaxConsecutiveFailures uint32
	// Timeout is how long the circuit breaker stays open before trying half-open
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxConsecutiveFailures: 5,
		Timeout:                30 * time.Second,
	}
}

// breakerAPI wraps API with circuit breaker protection so a flapping
// gateway stops receiving traffic for a cool-down period.
type breakerAPI struct {
	api     API
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewAPIWithCircuitBreaker wraps an API with circuit breaker protection
func NewAPIWithCircuitBreaker(api API, config CircuitBreakerConfig) API {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "HomeControlAPI",
		MaxRequests: 1,
		Interval:    config.Timeout,
		Timeout:     2 * config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxConsecutiveFailures
		},
	})

	return &breakerAPI{
		api:     api,
		breaker: cb,
		timeout: config.Timeout,
	}
}

// Plants implements API.Plants with circuit breaker protection
func (cb *breakerAPI) Plants(ctx context.Context) ([]Plant, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return cb.api.Plants(ctx)
	})
	if err != nil {
		return nil, cb.wrapError(err)
	}
	return result.([]Plant), nil
}

// Modules implements API.Modules with circuit breaker protection
func (cb *breakerAPI) Modules(ctx context.Context, plantID string) ([]Module, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return cb.api.Modules(ctx, plantID)
	})
	if err != nil {
		return nil, cb.wrapError(err)
	}
	return result.([]Module), nil
}

// SetState implements API.SetState with circuit breaker protection
func (cb *breakerAPI) SetState(ctx context.Context, moduleID string, on bool, level *int) error {
	_, err := cb.breaker.Execute(func() (interface{}, error) {
		return nil, cb.api.SetState(ctx, moduleID, on, level)
	})
	if err != nil {
		return cb.wrapError(err)
	}
	return nil
}

// GetState implements API.GetState with circuit breaker protection
func (cb *breakerAPI) GetState(ctx context.Context, moduleID string) (Status, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return cb.api.GetState(ctx, moduleID)
	})
	if err != nil {
		return Status{}, cb.wrapError(err)
	}
	return result.(Status), nil
}

// wrapError converts circuit breaker errors to user-friendly messages
func (cb *breakerAPI) wrapError(err error) error {
	if err == gobreaker.ErrOpenState {
		return fmt.Errorf("circuit breaker is open: API is temporarily unavailable (will retry after %v)", cb.timeout)
	}
	if err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("circuit breaker is half-open: testing API recovery")
	}
	return err
}
