package avr

import (
	"errors"
	"fmt"
)

var (
	// ErrNoVolumeControl means the device answered but reported no volume
	// outputs. That is a configuration problem, not a connectivity one, so
	// connecting stops instead of retrying.
	ErrNoVolumeControl = errors.New("avr: device reports no volume controls")

	// ErrUnknownSource means a source title does not match any input the
	// device advertised.
	ErrUnknownSource = errors.New("avr: unknown source")

	errReconnectTimeout = errors.New("avr: reconnect did not finish in time")
)

// TransportError wraps any failure talking to the device. Code carries the
// device's own error code when it returned one, otherwise zero.
type TransportError struct {
	Op   string
	Code int
	Err  error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("avr: %s: device error %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("avr: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a transport failure of operation op.
func NewTransportError(op string, code int, err error) *TransportError {
	return &TransportError{Op: op, Code: code, Err: err}
}

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
