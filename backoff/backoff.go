// Package backoff wraps cenkalti/backoff/v5 with the constant- and
// exponential-interval retry shapes this module needs: a bounded
// connection retry and a bounded lock-acquisition wait.
package backoff

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Wrapper configures and executes a retried operation.
type Wrapper struct {
	ctx       context.Context
	operation backoff.Operation[any]
	options   []backoff.RetryOption
}

// NewExponential builds a Wrapper using an exponential backoff policy.
func NewExponential(ctx context.Context, initialInterval time.Duration, randomizationFactor float64, multiplier float64, maxTries uint) *Wrapper {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initialInterval
	eb.RandomizationFactor = randomizationFactor
	eb.Multiplier = multiplier

	return &Wrapper{
		ctx:     ctx,
		options: []backoff.RetryOption{backoff.WithBackOff(eb), backoff.WithMaxTries(maxTries)},
	}
}

// NewConstant builds a Wrapper that retries at a fixed interval, used
// for the bounded connection retry and lock wait-timeout polling.
func NewConstant(ctx context.Context, interval time.Duration, maxTries uint) *Wrapper {
	cb := backoff.NewConstantBackOff(interval)
	return &Wrapper{
		ctx:     ctx,
		options: []backoff.RetryOption{backoff.WithBackOff(cb), backoff.WithMaxTries(maxTries)},
	}
}

// SetDoOperation sets the operation to retry.
func (b *Wrapper) SetDoOperation(o backoff.Operation[any]) {
	b.operation = o
}

// SetNotify registers a callback invoked after each failed attempt that
// is followed by another try; it is not called after the final attempt.
func (b *Wrapper) SetNotify(n backoff.Notify) {
	b.options = append(b.options, backoff.WithNotify(n))
}

// Exec runs the operation under the configured retry policy and
// reports whether it ultimately succeeded.
func (b *Wrapper) Exec() error {
	_, err := backoff.Retry(b.ctx, b.operation, b.options...)
	return err
}
