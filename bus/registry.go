// Package bus is the control plane of the virtual pad bus: a registry
// of live targets keyed by (type, serial) and a dispatcher that
// validates operation requests and routes them to the registry or a
// resolved target.
package bus

import (
	"log/slog"
	"sync"

	"github.com/virtpad/virtpad/target"
	"github.com/virtpad/virtpad/target/ds4"
	"github.com/virtpad/virtpad/target/x360"
	"github.com/virtpad/virtpad/wire"
)

type targetKey struct {
	typ    wire.TargetType
	serial uint32
}

// Registry owns the set of live targets. All mutation goes through
// PlugIn/Unplug under the registry lock; lookups take the read side, so
// a returned target is never observed mid-unplug (Unplug drains its
// pending notifications while still holding the write lock).
type Registry struct {
	mu            sync.RWMutex
	targets       map[targetKey]target.Target
	usedIndexes   map[uint32]bool   // X360 user indexes in use
	indexBySerial map[uint32]uint32 // X360 serial -> assigned user index
	logger        *slog.Logger
}

// NewRegistry returns an empty registry. Construct one per bus and pass
// it to the dispatcher; there is no process-wide instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		targets:       make(map[targetKey]target.Target),
		usedIndexes:   make(map[uint32]bool),
		indexBySerial: make(map[uint32]uint32),
		logger:        logger,
	}
}

// PlugIn constructs the variant-specific target and registers it. The
// uniqueness check and the insert happen in one critical section, so
// concurrent plug-ins of the same (type, serial) cannot both succeed.
func (r *Registry) PlugIn(req wire.PlugInTarget) (target.Target, wire.Status) {
	key := targetKey{req.TargetType, req.SerialNo}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.targets[key]; ok {
		return nil, wire.StatusAlreadyExists
	}

	var t target.Target
	switch req.TargetType {
	case wire.TargetX360Wired:
		t = x360.New(req.SerialNo, r.claimUserIndex(req.SerialNo), req.VendorID, req.ProductID)
	case wire.TargetDS4Wired:
		t = ds4.New(req.SerialNo, req.VendorID, req.ProductID)
	default:
		return nil, wire.StatusInvalidParameter
	}

	r.targets[key] = t
	r.logger.Info("target plugged in",
		"type", req.TargetType.String(),
		"serial", req.SerialNo,
		"vid", t.VendorID(),
		"pid", t.ProductID())
	return t, wire.StatusSuccess
}

// Unplug removes a live target. The target's parked notifications are
// completed with StatusTargetGone before the map entry is deleted and
// the lock released, so the serial only becomes reusable once the drain
// has finished.
func (r *Registry) Unplug(typ wire.TargetType, serial uint32) wire.Status {
	key := targetKey{typ, serial}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.targets[key]
	if !ok {
		return wire.StatusDeviceDoesNotExist
	}

	t.Unplug()
	delete(r.targets, key)
	if typ == wire.TargetX360Wired {
		r.releaseUserIndex(serial)
	}
	r.logger.Info("target unplugged", "type", typ.String(), "serial", serial)
	return wire.StatusSuccess
}

// Lookup resolves a live target by (type, serial). There is no fallback
// across types.
func (r *Registry) Lookup(typ wire.TargetType, serial uint32) (target.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[targetKey{typ, serial}]
	return t, ok
}

// List returns a snapshot of the live targets of one type.
func (r *Registry) List(typ wire.TargetType) []target.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]target.Target, 0, len(r.targets))
	for k, t := range r.targets {
		if k.typ == typ {
			out = append(out, t)
		}
	}
	return out
}

// Count returns the number of live targets across all types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

// claimUserIndex hands out the lowest free user index. Caller holds the
// registry lock.
func (r *Registry) claimUserIndex(serial uint32) uint32 {
	for i := uint32(0); ; i++ {
		if !r.usedIndexes[i] {
			r.usedIndexes[i] = true
			r.indexBySerial[serial] = i
			return i
		}
	}
}

// releaseUserIndex frees the index held by an X360 serial. Caller holds
// the registry lock.
func (r *Registry) releaseUserIndex(serial uint32) {
	if idx, ok := r.indexBySerial[serial]; ok {
		delete(r.usedIndexes, idx)
		delete(r.indexBySerial, serial)
	}
}
