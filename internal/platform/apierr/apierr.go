package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable machine-checkable class of a domain failure.
type Kind string

const (
	KindForbidden         Kind = "forbidden"
	KindInvalidOperation  Kind = "invalid_operation"
	KindNotFound          Kind = "not_found"
	KindValidationFailure Kind = "validation_failure"
	KindInternal          Kind = "internal"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, apierr.ErrForbidden) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Code != "" && t.Code == e.Code && t.Err == nil
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

var (
	ErrForbidden         = &Error{Status: http.StatusForbidden, Code: string(KindForbidden)}
	ErrInvalidOperation  = &Error{Status: http.StatusBadRequest, Code: string(KindInvalidOperation)}
	ErrNotFound          = &Error{Status: http.StatusNotFound, Code: string(KindNotFound)}
	ErrValidationFailure = &Error{Status: http.StatusUnprocessableEntity, Code: string(KindValidationFailure)}
)

func Forbidden(msg string) *Error {
	return New(http.StatusForbidden, string(KindForbidden), errors.New(msg))
}

func InvalidOperation(msg string) *Error {
	return New(http.StatusBadRequest, string(KindInvalidOperation), errors.New(msg))
}

func NotFound(msg string) *Error {
	return New(http.StatusNotFound, string(KindNotFound), errors.New(msg))
}

func Validation(msg string) *Error {
	return New(http.StatusUnprocessableEntity, string(KindValidationFailure), errors.New(msg))
}

// KindOf classifies err; anything that is not an *Error is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return Kind(e.Code)
	}
	return KindInternal
}
