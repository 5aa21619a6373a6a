// Package apperr defines the typed errors returned across the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation  Code = "validation_error"
	CodeInvalidJSON Code = "invalid_json"
	CodeNotFound    Code = "resource_not_found"
	CodeRateLimit   Code = "rate_limit_exceeded"
	CodeTimeout     Code = "request_timeout"
	CodeDependency  Code = "dependency_error"
	CodeInternal    Code = "internal_error"
)

type Metadata struct {
	HTTPStatus     int
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:  {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeInvalidJSON: {HTTPStatus: http.StatusBadRequest, PublicMessage: "invalid json", DetailsAllowed: true},
	CodeNotFound:    {HTTPStatus: http.StatusNotFound, PublicMessage: "not found"},
	CodeRateLimit:   {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},
	CodeTimeout:     {HTTPStatus: http.StatusGatewayTimeout, PublicMessage: "request timed out"},
	CodeDependency:  {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable"},
	CodeInternal:    {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error"},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error carries a code, a caller-facing message and optional details.
type Error struct {
	code    Code
	message string
	field   string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

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

func (e *Error) Field() string {
	if e == nil {
		return ""
	}
	return e.field
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithField names the request field the error refers to.
func (e *Error) WithField(field string) *Error {
	if e != nil {
		e.field = field
	}
	return e
}

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
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts an *Error from err's chain.
func As(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}
