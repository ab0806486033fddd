package objectstore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/config"
	"github.com/PhilHem/secureone/backend/logger"

	"github.com/sony/gobreaker"
)

// Guarded bounds every call with a timeout and, when enabled, trips a
// circuit breaker after consecutive backend failures. A missing key is not
// a failure.
type Guarded struct {
	next    Store
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewGuarded(next Store, timeout time.Duration, bc config.BreakerConfig, log logger.Logger) *Guarded {
	g := &Guarded{next: next, timeout: timeout}
	if !bc.Enabled {
		return g
	}
	maxFailures := bc.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ObjectStore",
		MaxRequests: 1,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, apperr.ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn(context.Background(), "circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return g
}

func (g *Guarded) run(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if g.cb == nil {
		return fn(ctx)
	}
	res, err := g.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		return nil, err
	}
	data, _ := res.([]byte)
	return data, nil
}

func (g *Guarded) Put(ctx context.Context, key string, data io.Reader, size int64) error {
	_, err := g.run(ctx, func(ctx context.Context) ([]byte, error) {
		return nil, g.next.Put(ctx, key, data, size)
	})
	return err
}

func (g *Guarded) Get(ctx context.Context, key string) ([]byte, error) {
	return g.run(ctx, func(ctx context.Context) ([]byte, error) {
		return g.next.Get(ctx, key)
	})
}

func (g *Guarded) Delete(ctx context.Context, key string) error {
	_, err := g.run(ctx, func(ctx context.Context) ([]byte, error) {
		return nil, g.next.Delete(ctx, key)
	})
	return err
}
