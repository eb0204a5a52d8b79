package errs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRequestTooLargeFormatsHumanSize(t *testing.T) {
	e := &RequestTooLarge{Bytes: 5 * 1024 * 1024}
	if got := e.Error(); !strings.Contains(got, "MB") {
		t.Fatalf("Error() = %q, want it to contain a human-readable size", got)
	}
	if !errors.Is(e, ErrRequestTooLarge) {
		t.Fatalf("expected errors.Is to match ErrRequestTooLarge")
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	a := Storage(errors.New("disk full"))
	b := Storage(errors.New("permission denied"))
	if !errors.Is(a, b) {
		t.Fatalf("expected two Storage errors to match by kind")
	}
	if errors.Is(a, Parse(errors.New("bad input"))) {
		t.Fatalf("expected Storage and Parse errors not to match")
	}
}

func TestStorageWithSuggestionIncludesSuggestion(t *testing.T) {
	e := StorageWithSuggestion(errors.New("disk full"), "free up space and retry")
	if got := e.Error(); !strings.Contains(got, "free up space") {
		t.Fatalf("Error() = %q, want it to contain the suggestion", got)
	}
}

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), BackoffPolicy{Base: time.Millisecond, Cap: time.Millisecond, MaxAttempts: 3}, func(ctx context.Context) error {
		attempts++
		return &Timeout{Dur: time.Second}
	})
	if err == nil {
		t.Fatalf("expected Retry to surface the final error")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryDoesNotRetryNonRetriable(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultProviderBackoff(), func(ctx context.Context) error {
		attempts++
		return Storage(errors.New("schema mismatch"))
	})
	if err == nil {
		t.Fatalf("expected Retry to return the storage error")
	}
	if attempts != 1 {
		t.Fatalf("expected a non-retriable Storage error to never be retried, got %d attempts", attempts)
	}
}

func TestRetryDoesNotRetryCancelled(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultProviderBackoff(), func(ctx context.Context) error {
		attempts++
		return &Error{Kind: KindCancelled, Err: ErrCancelled}
	})
	if err == nil {
		t.Fatalf("expected Retry to return the cancelled error")
	}
	if attempts != 1 {
		t.Fatalf("expected a Cancelled error to never be retried, got %d attempts", attempts)
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test-provider")
	for i := 0; i < 5; i++ {
		_, _ = b.Execute(func() (interface{}, error) {
			return nil, errors.New("boom")
		})
	}

	_, err := b.Execute(func() (interface{}, error) {
		return "unreachable", nil
	})
	var pu *ProviderUnavailable
	if !errors.As(err, &pu) {
		t.Fatalf("expected breaker to be open after consecutive failures, got %v", err)
	}
}
