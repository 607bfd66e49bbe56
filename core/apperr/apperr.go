// Package apperr defines the stable error kinds surfaced by the API layer.
// Every failure carries a programmatically distinguishable Kind plus a
// human-readable message; collaborator diagnostics ride along verbatim in
// Detail so they are never lost to string mangling.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation   Kind = "validation"    // malformed input, rejected synchronously
	KindPrecondition Kind = "precondition"  // stage run out of order, missing upstream artifact
	KindNotFound     Kind = "not_found"     // unknown upload, missing bundle or stemmap
	KindConflict     Kind = "conflict"      // stage already running for this upload
	KindTooLarge     Kind = "too_large"     // payload exceeds the configured cap
	KindCollaborator Kind = "collaborator"  // external analyzer/transformer failed
	KindStorage      Kind = "storage"       // durable read/write failure, fatal to the operation
	KindInternal     Kind = "internal"
)

// Error is the error type returned across component boundaries.
type Error struct {
	Kind   Kind
	Msg    string
	Detail string // optional, e.g. collaborator stderr preserved verbatim
	Err    error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// WithDetail attaches diagnostic detail and returns the error.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// KindOf extracts the Kind from err; unknown errors report KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// DetailOf extracts the Detail from err, if any.
func DetailOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Detail
	}
	return ""
}

// HTTPStatus maps an error to the HTTP status code the API layer responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindPrecondition:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindCollaborator:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
