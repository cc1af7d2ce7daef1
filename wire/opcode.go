package wire

// OpCode selects the bus operation a request frame carries. The set is
// closed; the dispatcher rejects anything else with
// StatusInvalidParameter.
type OpCode uint32

const (
	// Bus-level operations.
	OpCheckVersion OpCode = 0x0100
	OpPlugInTarget OpCode = 0x0101
	OpUnplugTarget OpCode = 0x0102

	// X360 target operations.
	OpX360SubmitReport        OpCode = 0x0200
	OpX360RequestNotification OpCode = 0x0201
	OpX360GetUserIndex        OpCode = 0x0202

	// DS4 target operations.
	OpDS4SubmitReport        OpCode = 0x0300
	OpDS4RequestNotification OpCode = 0x0301
)

func (o OpCode) String() string {
	switch o {
	case OpCheckVersion:
		return "check-version"
	case OpPlugInTarget:
		return "plugin-target"
	case OpUnplugTarget:
		return "unplug-target"
	case OpX360SubmitReport:
		return "x360-submit-report"
	case OpX360RequestNotification:
		return "x360-request-notification"
	case OpX360GetUserIndex:
		return "x360-get-user-index"
	case OpDS4SubmitReport:
		return "ds4-submit-report"
	case OpDS4RequestNotification:
		return "ds4-request-notification"
	default:
		return "unknown"
	}
}

// TargetType tags the emulation variant a target implements.
type TargetType uint32

const (
	TargetX360Wired TargetType = 1
	TargetDS4Wired  TargetType = 2
)

func (t TargetType) String() string {
	switch t {
	case TargetX360Wired:
		return "x360"
	case TargetDS4Wired:
		return "ds4"
	default:
		return "unknown"
	}
}

// ProtocolVersion is the compiled bus protocol version. Version checks
// succeed only on an exact match; there is no partial compatibility.
const ProtocolVersion uint32 = 0x0001
