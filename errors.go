package boxblur

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed device or engine.
	ErrClosed = errors.New("boxblur: closed")

	// ErrSize is returned when a host slice does not match a buffer.
	ErrSize = errors.New("boxblur: size mismatch")

	// ErrNoDevice is returned when no compute device can be opened.
	ErrNoDevice = errors.New("boxblur: no compute device")
)

// DeviceError reports a failed compute-backend operation. Backend failures
// are not recoverable: callers are expected to report the error and exit.
type DeviceError struct {
	// Backend names the device implementation, such as "software" or "vulkan".
	Backend string
	// Op is the failing operation, such as "CreateBuffer" or "Submit".
	Op string
	// Code is a backend status code, or 0 when the backend has none.
	Code int
	// Err is the underlying error.
	Err error
}

func (e *DeviceError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("boxblur: %s: %s failed (code %d): %v", e.Backend, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("boxblur: %s: %s failed: %v", e.Backend, e.Op, e.Err)
}

// Unwrap allows error chain inspection.
func (e *DeviceError) Unwrap() error { return e.Err }

// coder is implemented by backend errors that carry a native status, such
// as a D3D12 HRESULT.
type coder interface {
	Code() int32
}

// NewDeviceError wraps err as a DeviceError. The code is taken from the
// first error in the chain that reports one. It returns nil if err is nil.
func NewDeviceError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	e := &DeviceError{Backend: backend, Op: op, Err: err}
	var c coder
	if errors.As(err, &c) {
		e.Code = int(c.Code())
	}
	return e
}
