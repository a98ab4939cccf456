package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Backoff is the redial schedule used after a dropped connection.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	MaxElapsed time.Duration // zero retries until the context ends
	MaxRetries int           // zero means unlimited
}

// DefaultBackoff starts at half a second and caps at thirty.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial: 500 * time.Millisecond,
		Max:     30 * time.Second,
	}
}

func (b Backoff) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if b.Initial > 0 {
		exp.InitialInterval = b.Initial
	}
	if b.Max > 0 {
		exp.MaxInterval = b.Max
	}
	exp.MaxElapsedTime = b.MaxElapsed
	exp.Reset()

	var p backoff.BackOff = exp
	if b.MaxRetries > 0 {
		p = backoff.WithMaxRetries(p, uint64(b.MaxRetries))
	}
	return backoff.WithContext(p, ctx)
}

// Retry calls attempt until it succeeds, the schedule gives up, or ctx ends.
// onFailure sees every failed attempt and the wait before the next one.
func Retry(ctx context.Context, b Backoff, attempt func(context.Context) error, onFailure func(error, time.Duration)) error {
	op := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return attempt(ctx)
	}
	if onFailure == nil {
		onFailure = func(error, time.Duration) {}
	}
	if err := backoff.RetryNotify(op, b.policy(ctx), onFailure); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}
