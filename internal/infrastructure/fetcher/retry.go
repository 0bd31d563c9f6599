package fetcher

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"NewsBot/internal/domain"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	// Jitter above 1/3 could make consecutive delays shrink.
	defaultJitter = 0.25
	maxJitter     = 1.0 / 3
)

// RetryPolicy bounds how often and how patiently a URL is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// DefaultRetryPolicy is three attempts, 1s base doubling up to 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Jitter:      defaultJitter,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(def.MaxDelay, p.BaseDelay)
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > maxJitter {
		p.Jitter = maxJitter
	}
	return p
}

// retryState is the per-URL retry machine: an attempt counter plus the
// backoff schedule. It never sleeps itself.
type retryState struct {
	policy  RetryPolicy
	backoff *backoff.ExponentialBackOff
	attempt int
	last    time.Duration
}

func newRetryState(policy RetryPolicy) *retryState {
	policy = policy.normalized()
	b := &backoff.ExponentialBackOff{
		InitialInterval:     policy.BaseDelay,
		RandomizationFactor: policy.Jitter,
		Multiplier:          2,
		MaxInterval:         policy.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return &retryState{policy: policy, backoff: b}
}

// begin records the start of a new attempt and returns its 1-based number.
func (s *retryState) begin() int {
	s.attempt++
	return s.attempt
}

// next decides what follows a failed attempt: the delay before the next one,
// or false when the failure is terminal.
func (s *retryState) next(f *domain.Failure) (time.Duration, bool) {
	if !f.Retryable || s.attempt >= s.policy.MaxAttempts {
		return 0, false
	}

	delay := s.backoff.NextBackOff()
	if delay == backoff.Stop || delay > s.policy.MaxDelay {
		delay = s.policy.MaxDelay
	}
	if delay < s.last {
		delay = s.last
	}
	s.last = delay
	return delay, true
}

// Sleeper waits between attempts; tests substitute a recording fake.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
