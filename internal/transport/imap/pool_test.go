package imap

import (
	"errors"
	"testing"

	"github.com/meridian-pim/meridian/internal/errs"
)

func TestIsConnectionErrorClassifiesTaxonomyTypes(t *testing.T) {
	if !IsConnectionError(&errs.ProviderUnavailable{Msg: "dial failed"}) {
		t.Errorf("expected ProviderUnavailable to count as a connection error")
	}
	if !IsConnectionError(&errs.Timeout{}) {
		t.Errorf("expected Timeout to count as a connection error")
	}
	if IsConnectionError(&errs.AuthFailure{Provider: "imap.example.com"}) {
		t.Errorf("expected AuthFailure not to count as a connection error")
	}
}

func TestIsConnectionErrorFallsBackToStringMatch(t *testing.T) {
	if !IsConnectionError(errors.New("read tcp: connection reset by peer")) {
		t.Errorf("expected a raw net error string to still be recognized")
	}
	if IsConnectionError(errors.New("mailbox does not exist")) {
		t.Errorf("expected an unrelated protocol error not to match")
	}
	if IsConnectionError(nil) {
		t.Errorf("expected nil not to match")
	}
}

func TestPoolBreakerForIsStableAndScopedPerAccount(t *testing.T) {
	p := NewPool(DefaultPoolConfig(), func(accountID string) (*ClientConfig, error) {
		return nil, errors.New("unused")
	})

	a1 := p.breakerFor("acct-1")
	a2 := p.breakerFor("acct-1")
	if a1 != a2 {
		t.Errorf("expected breakerFor to return the same breaker for the same account")
	}

	other := p.breakerFor("acct-2")
	if a1 == other {
		t.Errorf("expected different accounts to get distinct breakers")
	}
}

func TestCreateConnectionWrapsCredentialFailureAsStorage(t *testing.T) {
	want := errors.New("account not found")
	p := NewPool(DefaultPoolConfig(), func(accountID string) (*ClientConfig, error) {
		return nil, want
	})

	_, err := p.createConnection(t.Context(), "missing-account")
	if err == nil {
		t.Fatalf("expected an error when credentials can't be resolved")
	}
	var storageErr *errs.Error
	if !errors.As(err, &storageErr) || storageErr.Kind != errs.KindStorage {
		t.Fatalf("expected a Storage-classified error, got %v", err)
	}
}
