// Package apperrors defines the error taxonomy shared across components.
//
// Every component that can fail returns an *Error carrying one of the
// stable Kind strings below instead of an ad-hoc error value, so the
// gateway can map failures to HTTP status with one lookup rather than
// string-compare dispatch scattered through handlers.
package apperrors

import "fmt"

// Kind is a stable identifier for one family of failure. Kinds are part of
// the wire contract: clients match on this string, not on message text.
type Kind string

const (
	Unauthenticated     Kind = "unauthenticated"
	TokenMissing        Kind = "token_missing"
	TokenInvalid        Kind = "token_invalid"
	TokenExpired        Kind = "token_expired"
	TokenWrongAudience  Kind = "token_wrong_audience"
	TokenWrongSession   Kind = "token_wrong_session"
	TokenAlreadyUsed    Kind = "token_already_used"
	InvalidState        Kind = "invalid_state"
	ChainBroken         Kind = "chain_broken"
	NotFound            Kind = "not_found"
	AlreadyExists       Kind = "already_exists"
	AlreadyInFlight     Kind = "already_in_flight"
	ValidationFailed    Kind = "validation_failed"
	ProviderUnavailable Kind = "provider_unavailable"
	RateLimited         Kind = "rate_limited"
	Internal            Kind = "internal"
)

// Error is the sum type every component boundary returns. Details carries
// structured, kind-specific data (e.g. the current tail on ChainBroken) that
// the gateway forwards to the client; it must never hold provider or store
// internals.
type Error struct {
	Kind    Kind
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around a lower-level cause. The
// cause is never exposed through Error.Message or Details; it exists only
// for server-side logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches client-visible structured detail to an Error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// Cause returns the wrapped internal error, for server-side logging only.
func (e *Error) Cause() error { return e.cause }

// As extracts an *Error from err, if any lies in its chain.
func As(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return nil, false
}
