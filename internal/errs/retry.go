package errs

import (
	"context"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffPolicy configures exponential backoff with jitter, matching the
// Sync Coordinator's default (spec §4.8: base 1s, cap 5m, jitter ±20%) and
// the AI Pipeline's retry budget (spec §4.5: max_retry_attempts default 3).
type BackoffPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	JitterFrac  float64
	MaxAttempts int
}

// DefaultSyncBackoff matches spec §4.8.
func DefaultSyncBackoff() BackoffPolicy {
	return BackoffPolicy{Base: time.Second, Cap: 5 * time.Minute, JitterFrac: 0.2, MaxAttempts: 0}
}

// DefaultProviderBackoff matches spec §4.5.
func DefaultProviderBackoff() BackoffPolicy {
	return BackoffPolicy{Base: 500 * time.Millisecond, Cap: 30 * time.Second, JitterFrac: 0.3, MaxAttempts: 3}
}

// Delay computes the backoff delay for the given attempt (0-indexed),
// doubling from Base and capping at Cap, with uniform jitter of ±JitterFrac.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > p.Cap {
			d = p.Cap
			break
		}
	}
	if p.JitterFrac <= 0 {
		return d
	}
	jitter := float64(d) * p.JitterFrac
	delta := (rand.Float64()*2 - 1) * jitter
	out := time.Duration(float64(d) + delta)
	if out < 0 {
		out = 0
	}
	return out
}

// Retry runs fn, retrying on Retriable errors per policy until MaxAttempts
// is exhausted (0 means retry forever until ctx is done) or ctx is
// cancelled. A Cancelled error from fn is never retried.
func Retry(ctx context.Context, policy BackoffPolicy, fn func(ctx context.Context) error) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !Retriable(err) {
			return err
		}
		attempt++
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return err
		}
		select {
		case <-time.After(policy.Delay(attempt - 1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Breaker wraps a gobreaker.CircuitBreaker scoped to one provider or
// transport, so a flapping remote stops being hammered on every tick.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a circuit breaker named for the given provider or
// transport identifier, tripping after 5 consecutive failures and
// half-opening after 30s — conservative defaults suited to background
// sync and AI provider calls alike.
func NewBreaker(name string) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker, returning a ProviderUnavailable
// error in place of gobreaker.ErrOpenState when the breaker is open.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.cb.Execute(fn)
	if err == gobreaker.ErrOpenState {
		return nil, &ProviderUnavailable{Msg: b.cb.Name() + " circuit open"}
	}
	return res, err
}
