// Package apierrors classifies number-pool/attribution failures into a
// small set of kinds so HTTP handlers can map any returned error to a
// wire response without string matching on error text.
package apierrors

import "github.com/cockroachdb/errors"

// Kind identifies the category of a failure surfaced to a caller.
type Kind int

const (
	KindNone Kind = iota
	KindPoolUnavailable
	KindPoolEmpty
	KindSessionNumberUnavailable
	KindNumberNotFound
	KindMaxRenewalExceeded
	KindSessionKeyMismatch
	KindNoSID
	KindPoolCookieExpired
	KindConfigError
	KindInternalError
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindPoolUnavailable:
		return "pool_unavailable"
	case KindPoolEmpty:
		return "pool_empty"
	case KindSessionNumberUnavailable:
		return "session_number_unavailable"
	case KindNumberNotFound:
		return "number_not_found"
	case KindMaxRenewalExceeded:
		return "max_renewal_exceeded"
	case KindSessionKeyMismatch:
		return "session_key_mismatch"
	case KindNoSID:
		return "no_sid"
	case KindPoolCookieExpired:
		return "pool_cookie_expired"
	case KindConfigError:
		return "config_error"
	case KindForbidden:
		return "forbidden"
	case KindInternalError:
		return "internal_error"
	default:
		return "none"
	}
}

// kindError pairs a Kind with its sentinel base so errors.Is/errors.As
// keep working after wrapping with additional context.
type kindError struct {
	kind Kind
	base error
}

func (e *kindError) Error() string { return e.base.Error() }
func (e *kindError) Unwrap() error { return e.base }

var (
	ErrPoolUnavailable         = newSentinel(KindPoolUnavailable, "pool unavailable")
	ErrPoolEmpty               = newSentinel(KindPoolEmpty, "pool empty")
	ErrSessionNumberUnavailable = newSentinel(KindSessionNumberUnavailable, "session number unavailable")
	ErrNumberNotFound          = newSentinel(KindNumberNotFound, "number not found")
	ErrMaxRenewalExceeded      = newSentinel(KindMaxRenewalExceeded, "maximum renewal exceeded")
	ErrSessionKeyMismatch      = newSentinel(KindSessionKeyMismatch, "session key mismatch")
	ErrNoSID                   = newSentinel(KindNoSID, "no session ID")
	ErrPoolCookieExpired       = newSentinel(KindPoolCookieExpired, "pool cookie expired")
	ErrConfigError             = newSentinel(KindConfigError, "config error")
	ErrInternalError           = newSentinel(KindInternalError, "internal error")
	ErrForbidden               = newSentinel(KindForbidden, "forbidden")
)

func newSentinel(kind Kind, msg string) *kindError {
	return &kindError{kind: kind, base: errors.New(msg)}
}

// Wrap annotates err so that Classify can recover kind, preserving the
// original error in the chain via %w-style wrapping.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, base: errors.Wrap(err, msg)}
}

// Classify walks the error chain looking for a Kind attached by one of
// the sentinels above or by Wrap. Returns (KindInternalError, false) for
// anything unrecognized so callers still get a safe default.
func Classify(err error) (Kind, bool) {
	if err == nil {
		return KindNone, true
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return KindInternalError, false
}

// Is reports whether err is ultimately one of the sentinels of kind.
func Is(err error, kind Kind) bool {
	k, ok := Classify(err)
	return ok && k == kind
}
