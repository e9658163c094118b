package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func noSleepPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:     maxRetries,
		BaseDelay:      time.Second,
		AttemptTimeout: time.Second,
		Sleep:          func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("REQUEST_TIME_OUT"), true},
		{errors.New("request timed out"), true},
		{errors.New("upstream returned 503"), true},
		{errors.New("HTTP 502 Bad Gateway"), true},
		{errors.New("504 gateway timeout"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("RATE_LIMIT"), true},
		{errors.New("model overloaded"), true},
		{errors.New("service unavailable"), true},
		{context.DeadlineExceeded, true},
		{errors.New("invalid api key"), false},
		{errors.New("400 bad request"), false},
		{errors.New("permission denied"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), noSleepPolicy(5), nil, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestDoNonTransientFailsImmediately(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), noSleepPolicy(5), nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("invalid api key")
	})
	if err == nil || err.Error() != "invalid api key" {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected zero retries, got %d calls", calls)
	}
}

func TestDoTransientRetriesToExhaustion(t *testing.T) {
	calls := 0
	p := noSleepPolicy(3)
	_, err := Do(context.Background(), p, nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("503 service unavailable")
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if calls != 4 {
		t.Errorf("expected 4 attempts, got %d", calls)
	}
	want := fmt.Sprintf("remote call failed after 4 attempts (each attempt capped at %s)", p.AttemptTimeout)
	if got := err.Error(); !strings.HasPrefix(got, want) {
		t.Errorf("exhaustion message = %q, want prefix %q", got, want)
	}
}

func TestDoTwoTimeoutsThenSuccess(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxRetries:     5,
		BaseDelay:      time.Second,
		AttemptTimeout: 20 * time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	calls := 0
	got, err := Do(context.Background(), p, nil, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			<-ctx.Done() // simulate a hung remote call until the attempt cap
			return "", ctx.Err()
		}
		return "third-attempt-payload", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "third-attempt-payload" {
		t.Errorf("got %q", got)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 backoff delays, got %d", len(delays))
	}
	if delays[1] != 2*delays[0] {
		t.Errorf("second delay %v is not double the first %v", delays[1], delays[0])
	}
}

func TestDoBackoffDoubles(t *testing.T) {
	p := Policy{BaseDelay: 4 * time.Second}
	wants := []time.Duration{4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}
	for i, want := range wants {
		if got := p.Backoff(i); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", i, got, want)
		}
	}
}

func TestDoCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, noSleepPolicy(5), nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("503")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retries after cancellation, got %d calls", calls)
	}
}
