package backend

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeRejected     ErrorCode = "rejected"
	ErrorCodeUnavailable  ErrorCode = "unavailable"
	ErrorCodeInvalid      ErrorCode = "invalid_response"
)

// Error is a failed call to the support backend.
type Error struct {
	Code       ErrorCode
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, status int, message string, err error) *Error {
	return &Error{
		Code:       code,
		StatusCode: status,
		Message:    message,
		Err:        err,
	}
}

func codeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorCodeUnauthorized
	case status == http.StatusForbidden:
		return ErrorCodeForbidden
	case status == http.StatusNotFound:
		return ErrorCodeNotFound
	case status == http.StatusConflict:
		return ErrorCodeConflict
	case status >= 500:
		return ErrorCodeUnavailable
	default:
		return ErrorCodeRejected
	}
}

// IsCode reports whether err is a backend Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var be *Error
	return errors.As(err, &be) && be.Code == code
}
