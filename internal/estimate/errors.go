package estimate

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrLookup matches every lookup failure.
	ErrLookup = errors.New("estimate lookup failed")
	// ErrInvalidCert reports a malformed PSA cert number.
	ErrInvalidCert = errors.New("invalid psa cert")
	// ErrNotFound reports that GameStop returned no offer for the cert.
	ErrNotFound = errors.New("estimate not found")
	// ErrSiteChanged reports that expected page elements were missing.
	ErrSiteChanged = errors.New("estimate page changed")
	// ErrTimeout reports that the estimate page did not respond in time.
	ErrTimeout = errors.New("estimate page timed out")
)

// TimeoutDetail is the detail reported when a lookup runs out of time.
const TimeoutDetail = "Timed out waiting for GameStop estimate result."

// Error is a lookup failure carrying a user-facing detail message.
type Error struct {
	kind        error
	Detail      string
	SnapshotURI string
	cause       error
}

// NewError builds an Error of the given kind. kind should be one of the
// package sentinels; ErrLookup denotes an unexpected failure.
func NewError(kind error, detail string, cause error) *Error {
	return &Error{kind: kind, Detail: detail, cause: cause}
}

// InvalidCert builds an ErrInvalidCert error.
func InvalidCert(detail string) *Error { return NewError(ErrInvalidCert, detail, nil) }

// NotFound builds an ErrNotFound error.
func NotFound(detail string) *Error { return NewError(ErrNotFound, detail, nil) }

// SiteChanged builds an ErrSiteChanged error.
func SiteChanged(detail string, cause error) *Error { return NewError(ErrSiteChanged, detail, cause) }

// Timeout builds an ErrTimeout error.
func Timeout(detail string, cause error) *Error { return NewError(ErrTimeout, detail, cause) }

// Unexpected wraps an unclassified failure.
func Unexpected(cause error) *Error {
	return NewError(ErrLookup, fmt.Sprintf("Unexpected error: %v", cause), cause)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.cause)
	}
	return e.Detail
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches the kind sentinel and ErrLookup.
func (e *Error) Is(target error) bool {
	return target == e.kind || target == ErrLookup
}

// Kind returns the sentinel this error was built with.
func (e *Error) Kind() error {
	if e.kind == nil {
		return ErrLookup
	}
	return e.kind
}

// WithSnapshot records where a diagnostic snapshot was written.
func (e *Error) WithSnapshot(uri string) *Error {
	e.SnapshotURI = uri
	return e
}

// AsError converts any error into an *Error. Context deadlines become
// timeouts and everything unclassified becomes an unexpected failure.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var lookupErr *Error
	if errors.As(err, &lookupErr) {
		return lookupErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(TimeoutDetail, err)
	}
	return Unexpected(err)
}

// OutcomeOf classifies err for metrics and history.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInvalidCert):
		return OutcomeInvalidCert
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrSiteChanged):
		return OutcomeSiteChanged
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}
