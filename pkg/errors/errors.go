// Package errors is the typed failure envelope passed from services to the
// HTTP layer. A Code resolves to Metadata through a single catalog; the
// catalog decides the status, the public text and whether details are shown.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

// Generic codes. Domain codes live in licensing.go.
const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// meta is shorthand for catalog rows.
func meta(status int, public string, opts ...func(*Metadata)) Metadata {
	m := Metadata{HTTPStatus: status, PublicMessage: public}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func retryable(m *Metadata)   { m.Retryable = true }
func withDetails(m *Metadata) { m.DetailsAllowed = true }

var genericCatalog = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:     meta(http.StatusForbidden, "access denied"),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found"),
	CodeConflict:      meta(http.StatusConflict, "conflict detected"),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded"),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable, withDetails),
}

var catalog = mergeCatalogs(genericCatalog, licensingCatalog)

// mergeCatalogs panics when two tables claim the same code.
func mergeCatalogs(tables ...map[Code]Metadata) map[Code]Metadata {
	out := make(map[Code]Metadata)
	for _, table := range tables {
		for code, m := range table {
			if _, dup := out[code]; dup {
				panic(fmt.Sprintf("errors: code %s registered twice", code))
			}
			out[code] = m
		}
	}
	return out
}

// Metadata resolves c, treating unregistered codes as CodeInternal.
func (c Code) Metadata() Metadata {
	if m, ok := catalog[c]; ok {
		return m
	}
	return catalog[CodeInternal]
}

func MetadataFor(code Code) Metadata { return code.Metadata() }

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return Wrap(code, nil, message)
}

// Wrap keeps err reachable through errors.Is/As. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Code never returns an empty value; a nil receiver reads as CodeInternal.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails mutates e and returns it for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As finds the outermost *Error in err's chain.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func IsCode(err error, code Code) bool {
	if typed := As(err); typed != nil {
		return typed.code == code
	}
	return false
}

// Retryable is false for untyped errors; callers cannot know they are safe.
func Retryable(err error) bool {
	if typed := As(err); typed != nil {
		return typed.code.Metadata().Retryable
	}
	return false
}
