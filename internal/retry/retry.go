// Package retry wraps remote calls with a hard per-attempt timeout and
// exponential-backoff retry for transient failures. The policy is an explicit
// value so callers and tests can tune attempts, delays, and classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Defaults for remote-call retry behavior.
const (
	DefaultMaxRetries     = 5
	DefaultBaseDelay      = 4 * time.Second
	DefaultAttemptTimeout = 120 * time.Second
)

// transientKeywords classify errors worth retrying. Matching is done on the
// uppercased error string.
var transientKeywords = []string{
	"TIMEOUT", "TIME_OUT", "TIMED_OUT", "REQUEST TIME",
	"REQUEST_TIMED_OUT", "502", "503", "504",
	"RATE_LIMIT", "RATE LIMIT", "OVERLOADED", "UNAVAILABLE",
}

// Policy describes how a remote call is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the backoff unit: the wait before retry k is
	// BaseDelay * 2^k.
	BaseDelay time.Duration

	// AttemptTimeout caps each individual attempt. An attempt that exceeds
	// it is abandoned and treated as transient.
	AttemptTimeout time.Duration

	// Transient classifies retryable errors; IsTransient when nil.
	Transient func(error) bool

	// Sleep waits between attempts; overridable in tests to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the standard remote-call policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		BaseDelay:      DefaultBaseDelay,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// IsTransient reports whether an error looks like a transient remote
// failure: timeouts, 5xx, rate limits, overload.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToUpper(err.Error())
	for _, kw := range transientKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// Backoff returns the wait before retry attempt (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.BaseDelay << attempt
}

func (p Policy) transient(err error) bool {
	if p.Transient != nil {
		return p.Transient(err)
	}
	return IsTransient(err)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes op under the policy: each attempt runs with a hard timeout,
// transient failures back off exponentially and retry, anything else
// propagates immediately. op must be re-invocable; it receives a fresh
// attempt context each time.
func Do[T any](ctx context.Context, p Policy, log *zap.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if log == nil {
		log = zap.NewNop()
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = DefaultAttemptTimeout
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		out, err := op(attemptCtx)
		cancel()
		if err == nil {
			return out, nil
		}

		// The caller going away is not a remote failure; stop immediately.
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if !p.transient(err) {
			return zero, err
		}
		lastErr = err

		if attempt >= p.MaxRetries {
			break
		}
		delay := p.Backoff(attempt)
		log.Warn("transient remote error, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.MaxRetries+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := p.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("remote call failed after %d attempts (each attempt capped at %s): %w",
		p.MaxRetries+1, p.AttemptTimeout, lastErr)
}
