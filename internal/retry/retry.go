// Package retry executes fallible operations with bounded retries and
// jittered exponential backoff. Retry policy for the upstream rates fetch
// lives entirely here; callers inspect the returned Result instead of
// handling panics or wrapped retry errors.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"
)

// Options configures a Do call. Zero fields take the defaults below.
type Options struct {
	MaxAttempts   int           // default 3
	BaseDelay     time.Duration // default 1s
	MaxDelay      time.Duration // default 10s
	BackoffFactor float64       // default 2

	// RetryIf decides whether a failure is worth another attempt.
	// Defaults to DefaultRetryIf with the configured Network.
	RetryIf func(error) bool

	// Rand supplies the jitter in [0,1). Defaults to math/rand; tests
	// inject a fixed source for reproducible delays.
	Rand func() float64

	// Network reports connectivity for the default retry predicate.
	// Defaults to AlwaysOnline.
	Network Network
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 10 * time.Second
	}
	if o.BackoffFactor <= 0 {
		o.BackoffFactor = 2
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	if o.Network == nil {
		o.Network = AlwaysOnline()
	}
	if o.RetryIf == nil {
		o.RetryIf = DefaultRetryIf(o.Network)
	}
	return o
}

// Result carries the outcome of a Do call: the value or the last failure,
// plus how many attempts were made.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
	Success  bool
}

// HTTPStatuser is implemented by errors that carry an upstream HTTP status.
type HTTPStatuser interface {
	HTTPStatus() int
}

// DefaultRetryIf retries when the device is offline, the failure is a
// network-level error or timeout, or it carries an HTTP status >=500 or 429.
func DefaultRetryIf(network Network) func(error) bool {
	return func(err error) bool {
		if !network.Online() {
			return true
		}

		var statuser HTTPStatuser
		if errors.As(err, &statuser) {
			status := statuser.HTTPStatus()
			return status >= 500 || status == 429
		}

		var netErr net.Error
		if errors.As(err, &netErr) {
			return true
		}
		return errors.Is(err, context.DeadlineExceeded)
	}
}

// Do runs op up to MaxAttempts times, sleeping between attempts with
// exponential backoff and up to 10% random jitter. It never returns an
// error itself: the Result carries the last failure when all attempts are
// exhausted or the retry predicate rejects one. Cancelling ctx aborts a
// pending backoff wait and surfaces ctx.Err() as the failure.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) Result[T] {
	opts = opts.withDefaults()

	var res Result[T]
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		res.Attempts = attempt

		value, err := op(ctx)
		if err == nil {
			res.Value = value
			res.Err = nil
			res.Success = true
			return res
		}
		res.Err = err

		if attempt == opts.MaxAttempts || !opts.RetryIf(err) {
			return res
		}

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(delay(attempt, opts)):
		}
	}
	return res
}

// delay computes min(base*factor^(attempt-1)*(1+jitter), max) where jitter
// is up to 10% of the exponential delay.
func delay(attempt int, opts Options) time.Duration {
	exponential := float64(opts.BaseDelay) * math.Pow(opts.BackoffFactor, float64(attempt-1))
	jitter := opts.Rand() * 0.1 * exponential
	return time.Duration(math.Min(exponential+jitter, float64(opts.MaxDelay)))
}
