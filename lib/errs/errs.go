// Package errs implements the closed error taxonomy used across the
// messaging core. Every error that crosses a component boundary is a
// *errs.Error carrying one of the Codes below, so callers can branch on
// errors.Is/errors.As instead of matching on message strings.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies the class of failure. The set is closed: new failure
// modes get a new Code here, not a bare fmt.Errorf at the call site.
type Code int

const (
	_ Code = iota
	InvalidKey
	ConnectionError
	Timeout
	StorageBackend
	NotFound
	Conflict
	MissingKeyPackage
	CryptoFailure
	ProtocolFailure
	SubscriptionError
)

func (c Code) String() string {
	switch c {
	case InvalidKey:
		return "invalid_key"
	case ConnectionError:
		return "connection_error"
	case Timeout:
		return "timeout"
	case StorageBackend:
		return "storage_backend"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case MissingKeyPackage:
		return "missing_key_package"
	case CryptoFailure:
		return "crypto_failure"
	case ProtocolFailure:
		return "protocol_failure"
	case SubscriptionError:
		return "subscription_error"
	default:
		return "unknown"
	}
}

// Error is the single error type returned across component boundaries.
type Error struct {
	Code    Code
	Message string
	Member  string // set only for MissingKeyPackage
	Cause   error
}

func (e *Error) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("%s: %s (member=%s)", e.Code, e.Message, e.Member)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, New(CodeX, "")) match on Code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error that wraps cause, preserving errors.Is/As chains.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// MissingKeyPackageFor builds the one Code that carries structured data
// beyond a message: the member whose key package could not be found.
func MissingKeyPackageFor(member string) *Error {
	return &Error{Code: MissingKeyPackage, Message: "no usable key package", Member: member}
}

// Of reports the Code of err, walking the wrap chain, and whether err is
// an *Error at all.
func Of(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
