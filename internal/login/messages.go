package login

import (
	"errors"

	"github.com/tajious/bmconsole/internal/upstream"
)

// Messages shown in the login banner.
const (
	MsgIdentityRequired   = "Enter your phone number, email or username."
	MsgCodeRequired       = "Enter the code we sent you."
	MsgPasswordRequired   = "Enter your password."
	MsgIdentityNotFound   = "User not found."
	MsgCodeSent           = "Code sent successfully."
	MsgDispatchFailed     = "Error sending code."
	MsgInvalidCode        = "Invalid code."
	MsgInvalidCredentials = "Invalid credentials."
	MsgNetwork            = "An unexpected error occurred. Please try again."
	MsgSessionFailed      = "Signed in, but the session could not be saved. Please try again."
)

// messageFor maps a failed accounts call to banner text. Server text is only
// trusted for lookup and dispatch failures; credential failures stay generic.
func messageFor(err error) string {
	switch {
	case errors.Is(err, upstream.ErrIdentityNotFound):
		return detailOr(err, MsgIdentityNotFound)
	case errors.Is(err, upstream.ErrDispatchFailed):
		return detailOr(err, MsgDispatchFailed)
	case errors.Is(err, upstream.ErrInvalidCode):
		return MsgInvalidCode
	case errors.Is(err, upstream.ErrInvalidCredentials):
		return MsgInvalidCredentials
	}
	return MsgNetwork
}

func detailOr(err error, fallback string) string {
	if detail := upstream.Detail(err); detail != "" {
		return detail
	}
	return fallback
}
