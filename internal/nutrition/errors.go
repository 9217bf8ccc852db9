// internal/nutrition/errors.go
package nutrition

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindAuthentication    Kind = "authentication"
	KindNetwork           Kind = "network"
	KindMalformedResponse Kind = "malformed_response"
	KindServerRejected    Kind = "server_rejected"
	KindUnknown           Kind = "unknown"
)

// Error is the failure type of every upload and parse operation. Kind tells
// the caller which treatment to apply; Message carries the server's reason
// for KindServerRejected.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func wrapError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}

// IsKind checks whether the error chain carries the provided kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsValidation(err error) bool        { return IsKind(err, KindValidation) }
func IsAuthentication(err error) bool    { return IsKind(err, KindAuthentication) }
func IsNetwork(err error) bool           { return IsKind(err, KindNetwork) }
func IsMalformedResponse(err error) bool { return IsKind(err, KindMalformedResponse) }
func IsServerRejected(err error) bool    { return IsKind(err, KindServerRejected) }

// RejectionMessage returns the server's reason when err is a rejection.
func RejectionMessage(err error) (string, bool) {
	var typed *Error
	if errors.As(err, &typed) && typed.Kind == KindServerRejected {
		return typed.Message, true
	}
	return "", false
}
