package carrier

import (
	"context"
	"errors"
	"fmt"
)

// Gateway is the opaque carrier collaborator: submit a message, get an
// opaque provider reference back. Delivery outcomes arrive later via
// the receipt webhook, not through this interface.
type Gateway interface {
	Send(ctx context.Context, to, body string) (providerRef string, err error)
}

// ErrorClass separates errors worth retrying from terminal ones.
type ErrorClass string

const (
	ErrorClassTransient ErrorClass = "transient"
	ErrorClassPermanent ErrorClass = "permanent"
)

// SendError is a classified carrier submission failure.
type SendError struct {
	Class  ErrorClass
	Code   string
	Reason string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("carrier send failed (%s/%s): %s", e.Class, e.Code, e.Reason)
}

func NewTransientError(code, reason string) *SendError {
	return &SendError{Class: ErrorClassTransient, Code: code, Reason: reason}
}

func NewPermanentError(code, reason string) *SendError {
	return &SendError{Class: ErrorClassPermanent, Code: code, Reason: reason}
}

// IsPermanent reports whether err is a classified permanent failure.
// Unclassified errors (timeouts, broken connections) count as
// transient so they get the retry budget.
func IsPermanent(err error) bool {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Class == ErrorClassPermanent
	}
	return false
}
