package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

// newBreaker trips after five requests in a window when at least 60% of them
// failed with a dependency error. Validation failures from the peer count as
// successes so a bad request cannot open the circuit.
func newBreaker(name string, logger observability.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrDependencyUnavailable)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_changed",
				observability.F("name", name),
				observability.F("from", from.String()),
				observability.F("to", to.String()),
			)
		},
	})
}

func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %s: %w", domain.ErrDependencyUnavailable, cb.Name(), err)
		}
		return *new(T), err
	}
	return res.(T), nil
}
