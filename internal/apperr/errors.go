// Package apperr holds the error taxonomy shared by stores, the auth manager
// and the HTTP layer. Every failure that reaches a client carries a stable
// Kind and Code; anything else is reported as KindInternal.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindValidation         Kind = "validation"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindStorageTimeout     Kind = "storage_timeout"
	KindInternal           Kind = "internal"
)

// Error is a classified failure. Message is safe to show to clients; Err is
// the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and Code so that freshly built errors compare equal to
// the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// New builds an error without an underlying cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an error around a cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Shorthand constructors.
func NotFound(what string) *Error {
	return New(KindNotFound, what+"_not_found", what+" not found")
}

func Forbidden(message string) *Error {
	return New(KindForbidden, "forbidden", message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: "validation_failed", Message: message, Fields: fields}
}

// Sentinels referenced across packages.
var (
	ErrUnauthenticated    = New(KindUnauthenticated, "unauthenticated", "authentication required")
	ErrInvalidCredentials = New(KindUnauthenticated, "invalid_credentials", "invalid credentials")
	ErrTokenExpired       = New(KindUnauthenticated, "token_expired", "token expired")
	ErrTokenInvalid       = New(KindUnauthenticated, "token_invalid", "invalid token")
	ErrTokenRevoked       = New(KindUnauthenticated, "token_revoked", "token has been revoked, please log in again")
	ErrDuplicateEmail     = New(KindConflict, "duplicate_email", "email already registered")
	ErrDuplicateID        = New(KindConflict, "duplicate_allocation", "identifier already in use")
	ErrInsufficientStock  = New(KindInsufficientStock, "insufficient_stock", "insufficient stock")
	ErrStorageUnavailable = New(KindStorageUnavailable, "storage_unavailable", "storage unavailable")
	ErrStorageTimeout     = New(KindStorageTimeout, "storage_timeout", "storage operation timed out")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to its response status.
func HTTPStatus(k Kind) int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInsufficientStock:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case KindStorageTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
