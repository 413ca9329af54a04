package avr

// Status is the result of a device command. Commands never return raw
// errors across the package boundary; failures are folded into one of
// these codes and logged inside the session.
type Status int

const (
	StatusOK                 Status = 200
	StatusBadRequest         Status = 400
	StatusTimeout            Status = 408
	StatusNotImplemented     Status = 501
	StatusServiceUnavailable Status = 503
)

// OK reports whether the command took effect or was accepted for replay.
func (s Status) OK() bool { return s == StatusOK }

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadRequest:
		return "bad_request"
	case StatusTimeout:
		return "timeout"
	case StatusNotImplemented:
		return "not_implemented"
	case StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "unknown"
	}
}
