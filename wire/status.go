package wire

// Status is the outcome of a dispatched bus operation. StatusPending is
// the only non-terminal value; a pending request is always finished
// later by exactly one terminal status.
type Status uint32

const (
	StatusSuccess Status = iota
	StatusPending
	StatusInvalidParameter
	StatusDeviceDoesNotExist
	StatusAlreadyExists
	StatusNotSupported
	StatusBusy
	StatusCancelled
	StatusTargetGone
)

// Terminal reports whether s finishes a request.
func (s Status) Terminal() bool { return s != StatusPending }

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPending:
		return "pending"
	case StatusInvalidParameter:
		return "invalid parameter"
	case StatusDeviceDoesNotExist:
		return "device does not exist"
	case StatusAlreadyExists:
		return "already exists"
	case StatusNotSupported:
		return "not supported"
	case StatusBusy:
		return "busy"
	case StatusCancelled:
		return "cancelled"
	case StatusTargetGone:
		return "target gone"
	default:
		return "unknown status"
	}
}
