package bus

import (
	"log/slog"

	"github.com/virtpad/virtpad/target"
	"github.com/virtpad/virtpad/wire"
)

// Result is the immediate outcome of a dispatched operation. Output is
// only set for output-bearing operations that completed synchronously.
type Result struct {
	Status wire.Status
	Output []byte
}

// Dispatcher validates operation requests and routes them to the
// registry or a resolved target. It is safe for concurrent use; all
// mutable state lives in the registry and the targets.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher wraps a registry with the operation entry point.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch runs one operation. input is the raw request buffer as
// received from the transport; outputCap is the caller-declared output
// capacity in bytes. A non-nil Pending (with StatusPending) means the
// request parked and the caller must wait on it, cancel it, or observe
// it drained by an unplug.
//
// Validation never mutates: any rejected request leaves registry and
// target state untouched, so a corrected resend behaves as if the bad
// one never happened.
func (d *Dispatcher) Dispatch(op wire.OpCode, input []byte, outputCap int) (Result, *target.Pending) {
	switch op {
	case wire.OpCheckVersion:
		return d.checkVersion(input), nil
	case wire.OpPlugInTarget:
		return d.plugIn(input), nil
	case wire.OpUnplugTarget:
		return d.unplug(input), nil
	case wire.OpX360SubmitReport:
		return d.submitReport(input, wire.TargetX360Wired, wire.X360SubmitReportSize), nil
	case wire.OpX360RequestNotification:
		return d.requestNotification(input, outputCap, wire.TargetX360Wired, wire.X360NotificationSize)
	case wire.OpX360GetUserIndex:
		return d.getUserIndex(input, outputCap), nil
	case wire.OpDS4SubmitReport:
		return d.submitReport(input, wire.TargetDS4Wired, wire.DS4SubmitReportSize), nil
	case wire.OpDS4RequestNotification:
		return d.requestNotification(input, outputCap, wire.TargetDS4Wired, wire.DS4NotificationSize)
	default:
		d.logger.Warn("unknown operation", "op", uint32(op))
		return Result{Status: wire.StatusInvalidParameter}, nil
	}
}

// decodeHeader enforces the shared request contract: the buffer holds
// at least a header, the declared Size matches both the expected
// constant and the transport-reported length, and the serial is
// nonzero.
func decodeHeader(input []byte, want uint32) (wire.RequestHeader, wire.Status) {
	var hdr wire.RequestHeader
	if hdr.UnmarshalBinary(input) != nil {
		return hdr, wire.StatusInvalidParameter
	}
	if hdr.Size != want || uint32(len(input)) != want {
		return hdr, wire.StatusInvalidParameter
	}
	if hdr.SerialNo == 0 {
		return hdr, wire.StatusInvalidParameter
	}
	return hdr, wire.StatusSuccess
}

func (d *Dispatcher) checkVersion(input []byte) Result {
	var req wire.CheckVersion
	if req.UnmarshalBinary(input) != nil {
		return Result{Status: wire.StatusInvalidParameter}
	}
	if req.Size != wire.CheckVersionSize || uint32(len(input)) != wire.CheckVersionSize {
		return Result{Status: wire.StatusInvalidParameter}
	}
	if req.Version != wire.ProtocolVersion {
		d.logger.Warn("protocol version mismatch",
			"client", req.Version, "bus", wire.ProtocolVersion)
		return Result{Status: wire.StatusNotSupported}
	}
	return Result{Status: wire.StatusSuccess}
}

func (d *Dispatcher) plugIn(input []byte) Result {
	var req wire.PlugInTarget
	if req.UnmarshalBinary(input) != nil {
		return Result{Status: wire.StatusInvalidParameter}
	}
	if req.Size != wire.PlugInTargetSize || uint32(len(input)) != wire.PlugInTargetSize {
		return Result{Status: wire.StatusInvalidParameter}
	}
	if req.SerialNo == 0 {
		return Result{Status: wire.StatusInvalidParameter}
	}
	_, st := d.registry.PlugIn(req)
	return Result{Status: st}
}

func (d *Dispatcher) unplug(input []byte) Result {
	var req wire.UnplugTarget
	if req.UnmarshalBinary(input) != nil {
		return Result{Status: wire.StatusInvalidParameter}
	}
	if req.Size != wire.UnplugTargetSize || uint32(len(input)) != wire.UnplugTargetSize {
		return Result{Status: wire.StatusInvalidParameter}
	}
	if req.SerialNo == 0 {
		return Result{Status: wire.StatusInvalidParameter}
	}
	return Result{Status: d.registry.Unplug(req.TargetType, req.SerialNo)}
}

func (d *Dispatcher) submitReport(input []byte, typ wire.TargetType, want uint32) Result {
	hdr, st := decodeHeader(input, want)
	if st != wire.StatusSuccess {
		return Result{Status: st}
	}
	t, ok := d.registry.Lookup(typ, hdr.SerialNo)
	if !ok {
		return Result{Status: wire.StatusDeviceDoesNotExist}
	}
	return Result{Status: t.SubmitReport(input[wire.RequestHeaderSize:])}
}

// requestNotification checks the output capacity before anything else:
// a caller that cannot receive the completed notification is rejected
// even when the rest of the request would fail too.
func (d *Dispatcher) requestNotification(input []byte, outputCap int, typ wire.TargetType, want uint32) (Result, *target.Pending) {
	if outputCap < int(want) {
		return Result{Status: wire.StatusInvalidParameter}, nil
	}
	hdr, st := decodeHeader(input, want)
	if st != wire.StatusSuccess {
		return Result{Status: st}, nil
	}
	t, ok := d.registry.Lookup(typ, hdr.SerialNo)
	if !ok {
		return Result{Status: wire.StatusDeviceDoesNotExist}, nil
	}
	out, pending, st := t.EnqueueNotification()
	return Result{Status: st, Output: out}, pending
}

func (d *Dispatcher) getUserIndex(input []byte, outputCap int) Result {
	if outputCap < wire.X360GetUserIndexSize {
		return Result{Status: wire.StatusInvalidParameter}
	}
	var req wire.X360GetUserIndex
	if req.UnmarshalBinary(input) != nil {
		return Result{Status: wire.StatusInvalidParameter}
	}
	if req.Size != wire.X360GetUserIndexSize || uint32(len(input)) != wire.X360GetUserIndexSize {
		return Result{Status: wire.StatusInvalidParameter}
	}
	if req.SerialNo == 0 {
		return Result{Status: wire.StatusInvalidParameter}
	}
	t, ok := d.registry.Lookup(wire.TargetX360Wired, req.SerialNo)
	if !ok {
		return Result{Status: wire.StatusDeviceDoesNotExist}
	}
	idx, st := t.GetAttribute(target.AttrUserIndex)
	if st != wire.StatusSuccess {
		return Result{Status: st}
	}
	req.UserIndex = idx
	out, err := req.MarshalBinary()
	if err != nil {
		return Result{Status: wire.StatusInvalidParameter}
	}
	return Result{Status: wire.StatusSuccess, Output: out}
}
