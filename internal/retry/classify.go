// Package retry classifies fetch failures and retries the transient ones.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Class is the failure class of a fetch error
type Class int

const (
	ClassNone      Class = iota // no error
	ClassCanceled               // caller cancelled the run
	ClassTimeout                // request deadline exceeded; remote assumed overloaded
	ClassStatus                 // non-success HTTP status
	ClassSchema                 // response present but not the expected shape
	ClassInvalid                // request could not be built (bad URL, disallowed path)
	ClassTransient              // anything else, e.g. connection reset
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassCanceled:
		return "canceled"
	case ClassTimeout:
		return "timeout"
	case ClassStatus:
		return "status"
	case ClassSchema:
		return "schema"
	case ClassInvalid:
		return "invalid"
	default:
		return "transient"
	}
}

// ErrInvalidInput marks failures caused by the request itself rather than the remote
var ErrInvalidInput = errors.New("invalid input")

// StatusError is returned for non-success HTTP responses
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// SchemaError is returned when a response body is missing required shape
type SchemaError struct {
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return "malformed response: " + e.Reason
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Classify maps an error to its failure class
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ClassStatus
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return ClassSchema
	}
	if errors.Is(err, ErrInvalidInput) {
		return ClassInvalid
	}
	return ClassTransient
}

// IsRetryable reports whether err is worth another attempt.
// Only ambiguous transient failures qualify; stable conditions are skipped at once.
func IsRetryable(err error) bool {
	return Classify(err) == ClassTransient
}
