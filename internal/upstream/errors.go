package upstream

import (
	"errors"
	"fmt"
)

var (
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrDispatchFailed     = errors.New("code dispatch failed")
	ErrInvalidCode        = errors.New("invalid code")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRefreshRejected    = errors.New("refresh token rejected")
	ErrUnexpected         = errors.New("unexpected response")
	ErrTransport          = errors.New("transport error")
)

// Error is returned by every Client call that fails. Kind is one of the
// sentinels above and is matched with errors.Is.
type Error struct {
	Kind   error
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Detail returns the server-provided error text carried by err, if any.
func Detail(err error) string {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.Detail
	}
	return ""
}
