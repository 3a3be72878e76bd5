package cartesian

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrDeviceOpenFailed is returned when the connection to the controller cannot be established.
	ErrDeviceOpenFailed = errors.New("cartesian: device open failed")

	// ErrInterfaceUnavailable is returned when the opened device has no cartesian control interface.
	ErrInterfaceUnavailable = errors.New("cartesian: control interface unavailable")

	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("cartesian: device closed")
)

// ConnectError describes a failed Open.
type ConnectError struct {
	// Remote is the controller endpoint that was being opened.
	Remote string

	// Kind is ErrDeviceOpenFailed or ErrInterfaceUnavailable.
	Kind error

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v [%s]: %v", e.Kind, e.Remote, e.Err)
	}
	return fmt.Sprintf("%v [%s]", e.Kind, e.Remote)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *ConnectError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func openFailed(remote string, err error) error {
	return &ConnectError{Remote: remote, Kind: ErrDeviceOpenFailed, Err: err}
}

func interfaceUnavailable(remote string, err error) error {
	return &ConnectError{Remote: remote, Kind: ErrInterfaceUnavailable, Err: err}
}
