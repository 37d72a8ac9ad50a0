// Package breaker wraps an AverageRepository in a circuit breaker.
package breaker

import (
	"context"
	"errors"
	"time"

	"binstatus/internal/domain"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Repository guards every store call with one shared breaker.
type Repository struct {
	next domain.AverageRepository
	cb   *gobreaker.CircuitBreaker
}

// New trips after maxFailures consecutive failures and stays open for
// openTimeout before letting a probe through.
func New(next domain.AverageRepository, maxFailures int, openTimeout time.Duration) *Repository {
	if maxFailures < 1 {
		maxFailures = 1
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "average-repository",
		Timeout: openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return &Repository{next: next, cb: cb}
}

// Ensure interfaces are met.
var _ domain.AverageRepository = (*Repository)(nil)

// State reports the breaker state.
func (r *Repository) State() gobreaker.State {
	return r.cb.State()
}

// UpdateStatus forwards to the wrapped repository unless the breaker is open.
func (r *Repository) UpdateStatus(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	return r.run("update status", func() error { return r.next.UpdateStatus(ctx, id, status, at) })
}

// AddReport forwards to the wrapped repository unless the breaker is open.
func (r *Repository) AddReport(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	return r.run("add report", func() error { return r.next.AddReport(ctx, id, status, at) })
}

func (r *Repository) run(op string, fn func() error) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.StorageError{Op: op, Err: err}
	}
	return err
}
