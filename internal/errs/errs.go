// Package errs implements the error taxonomy and retry/backoff fabric
// described in spec §7: storage, parse, provider/network, policy, and
// cancellation errors, plus the retry helper the Sync Coordinator and AI
// Pipeline share.
package errs

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Kind classifies an error into one of the five taxonomy buckets.
type Kind int

const (
	KindStorage Kind = iota
	KindParse
	KindProvider
	KindPolicy
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindStorage:
		return "storage"
	case KindParse:
		return "parse"
	case KindProvider:
		return "provider"
	case KindPolicy:
		return "policy"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a taxonomy Kind, a Retriable flag,
// and an optional platform-specific recovery suggestion (spec §7:
// "permission denied, disk full, path too long, read-only FS"). The
// Retriable field is informational: the Retriable function and Retry
// decide by error type and do not read it.
type Error struct {
	Kind       Kind
	Retriable  bool
	Suggestion string
	Err        error
}

func (e *Error) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Err, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is enables errors.Is(err, &errs.Error{Kind: errs.KindCancelled}) style
// checks against a Kind marker without needing a dedicated sentinel per
// call site.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newErr(kind Kind, retriable bool, err error) *Error {
	return &Error{Kind: kind, Retriable: retriable, Err: err}
}

// Storage wraps a storage-layer failure (I/O, schema, constraint).
func Storage(err error) *Error { return newErr(KindStorage, false, err) }

// StorageWithSuggestion attaches a platform-specific recovery suggestion.
func StorageWithSuggestion(err error, suggestion string) *Error {
	e := newErr(KindStorage, false, err)
	e.Suggestion = suggestion
	return e
}

// Parse wraps a malformed-input failure (RFC 5322, iCalendar, Maildir
// filename). Per spec §7 these are never retried and never abort a batch.
func Parse(err error) *Error { return newErr(KindParse, false, err) }

// Provider taxonomy, mirroring spec §4.5's failure list.
var (
	ErrAuthFailure         = errors.New("auth failure")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrRequestTooLarge     = errors.New("request too large")
	ErrInvalidResponse     = errors.New("invalid response")
	ErrTimeout             = errors.New("operation timed out")
	ErrCancelled           = errors.New("operation cancelled")
	ErrPrivacyViolation    = errors.New("privacy violation")
	ErrUnsupportedCap      = errors.New("unsupported capability")
	ErrOverload            = errors.New("queue overload")
)

// RateLimited carries a provider-specified retry-after duration.
type RateLimited struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("rate limited by %s, retry after %s", e.Provider, e.RetryAfter)
}

// AuthFailure, ProviderUnavailable, RequestTooLarge, InvalidResponse,
// Timeout are constructed with their provider/size/message context.
type AuthFailure struct{ Provider string }

func (e *AuthFailure) Error() string { return fmt.Sprintf("auth failure: %s", e.Provider) }
func (e *AuthFailure) Unwrap() error { return ErrAuthFailure }

type ProviderUnavailable struct{ Msg string }

func (e *ProviderUnavailable) Error() string { return fmt.Sprintf("provider unavailable: %s", e.Msg) }
func (e *ProviderUnavailable) Unwrap() error { return ErrProviderUnavailable }

// PrivacyViolation marks a request that cannot proceed under its privacy
// mode (spec §4.5's LocalOnly with no local provider configured). Never
// retriable: retrying doesn't change the policy.
type PrivacyViolation struct{ Msg string }

func (e *PrivacyViolation) Error() string { return fmt.Sprintf("privacy violation: %s", e.Msg) }
func (e *PrivacyViolation) Unwrap() error { return ErrPrivacyViolation }

type RequestTooLarge struct{ Bytes int64 }

func (e *RequestTooLarge) Error() string {
	return fmt.Sprintf("request too large: %s", humanize.Bytes(uint64(e.Bytes)))
}
func (e *RequestTooLarge) Unwrap() error { return ErrRequestTooLarge }

type InvalidResponse struct{ Msg string }

func (e *InvalidResponse) Error() string { return fmt.Sprintf("invalid response: %s", e.Msg) }
func (e *InvalidResponse) Unwrap() error { return ErrInvalidResponse }

type Timeout struct{ Dur time.Duration }

func (e *Timeout) Error() string { return fmt.Sprintf("timed out after %s", e.Dur) }
func (e *Timeout) Unwrap() error { return ErrTimeout }

type Internal struct{ Msg string }

func (e *Internal) Error() string { return fmt.Sprintf("internal error: %s", e.Msg) }

// Retriable reports whether an error belongs to the retriable set
// (RateLimited, ProviderUnavailable, Timeout) per spec §4.5/§7.
func Retriable(err error) bool {
	var rl *RateLimited
	var pu *ProviderUnavailable
	var to *Timeout
	return errors.As(err, &rl) || errors.As(err, &pu) || errors.As(err, &to)
}
