package uplink

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnauthorized is returned when the remote rejects the cached token.
var ErrUnauthorized = errors.New("uplink token rejected")

// AuthError is a failed token acquisition.
type AuthError struct {
	Status int
	Code   int
	Msg    string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token acquisition failed: %v", e.Err)
	}
	return fmt.Sprintf("token acquisition rejected: status %d code %d: %s", e.Status, e.Code, e.Msg)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// UplinkError is a failed forward of a frame, including timeouts.
type UplinkError struct {
	Status int
	Code   int
	Msg    string
	Err    error
}

func (e *UplinkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("forward failed: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("forward rejected: status %d code %d: %s", e.Status, e.Code, e.Msg)
}

func (e *UplinkError) Unwrap() error {
	return e.Err
}
