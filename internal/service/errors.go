package service

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrorCodePermission   ErrorCode = "PERMISSION_DENIED"
	ErrorCodeConflict     ErrorCode = "CONFLICT"
	ErrorCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrorCodeInvalidBody  ErrorCode = "INVALID_BODY"
	ErrorCodeUnspecified  ErrorCode = "UNSPECIFIED"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func NewServiceError(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	return e.Message
}

func validationError(format string, args ...any) *Error {
	return NewServiceError(ErrorCodeValidation, format, args...)
}

func permissionError(format string, args ...any) *Error {
	return NewServiceError(ErrorCodePermission, format, args...)
}

func conflictError(format string, args ...any) *Error {
	return NewServiceError(ErrorCodeConflict, format, args...)
}

func notFoundError(format string, args ...any) *Error {
	return NewServiceError(ErrorCodeNotFound, format, args...)
}

// asServiceError extracts the *Error returned from inside a transaction.
// Anything else (begin/commit failures) becomes UNSPECIFIED.
func asServiceError(err error) *Error {
	if err == nil {
		return nil
	}
	var res *Error
	if errors.As(err, &res) {
		return res
	}
	return NewError(ErrorCodeUnspecified, "internal error")
}
