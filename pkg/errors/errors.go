package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Engine error taxonomy. DuplicateEvent is an expected steady-state
// outcome, not a failure.
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrInternal
	ErrDuplicateEvent
	ErrNoActiveTemplate
	ErrTransientDispatch
	ErrPermanentDispatch
	ErrUnknownReceipt
)

func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func DuplicateEvent(fingerprint string) *AppError {
	return &AppError{
		Code:    ErrDuplicateEvent,
		Message: fmt.Sprintf("event %s already processed", fingerprint),
	}
}

func NoActiveTemplate(trigger string) *AppError {
	return &AppError{
		Code:    ErrNoActiveTemplate,
		Message: fmt.Sprintf("no active template for trigger %s", trigger),
	}
}

func TransientDispatch(err error) *AppError {
	return &AppError{
		Code:    ErrTransientDispatch,
		Message: "transient dispatch failure",
		Err:     err,
	}
}

func PermanentDispatch(err error) *AppError {
	return &AppError{
		Code:    ErrPermanentDispatch,
		Message: "permanent dispatch failure",
		Err:     err,
	}
}

func UnknownReceipt(providerRef string) *AppError {
	return &AppError{
		Code:    ErrUnknownReceipt,
		Message: fmt.Sprintf("receipt for unknown provider ref %s", providerRef),
	}
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
