// Package errs defines the failure kinds every dashboard flow reports.
//
// Each flow turns a failure into an *Error carrying a Kind and a short
// user-facing message; callers match on kinds with errors.Is against the
// sentinel values below.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotConnected
	KindInvalidInput
	KindNetworkFailure
	KindCapabilityUnsupported
	KindVerificationMismatch
	KindExhausted
)

func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "not_connected"
	case KindInvalidInput:
		return "invalid_input"
	case KindNetworkFailure:
		return "network_failure"
	case KindCapabilityUnsupported:
		return "capability_unsupported"
	case KindVerificationMismatch:
		return "verification_mismatch"
	case KindExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrNotConnected          = &Error{Kind: KindNotConnected, Msg: "Please connect your wallet first"}
	ErrInvalidInput          = &Error{Kind: KindInvalidInput, Msg: "invalid input"}
	ErrNetworkFailure        = &Error{Kind: KindNetworkFailure, Msg: "network request failed"}
	ErrCapabilityUnsupported = &Error{Kind: KindCapabilityUnsupported, Msg: "wallet does not support this operation"}
	ErrVerificationMismatch  = &Error{Kind: KindVerificationMismatch, Msg: "Signature is invalid!"}
	ErrExhausted             = &Error{Kind: KindExhausted, Msg: "no more transactions"}
)

// Error is a classified failure with a status message safe to show a user.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so wrapped errors compare equal
// to the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an error of the given kind with a status message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies err under kind. The status message is msg; the cause is
// kept for logs.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Invalidf is a shorthand for InvalidInput errors.
func Invalidf(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the short status string for err. Unclassified errors
// return their full text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}
