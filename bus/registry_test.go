package bus_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtpad/virtpad/bus"
	"github.com/virtpad/virtpad/target"
	"github.com/virtpad/virtpad/wire"
)

func plugReq(typ wire.TargetType, serial uint32) wire.PlugInTarget {
	return wire.PlugInTarget{
		Size:       wire.PlugInTargetSize,
		SerialNo:   serial,
		TargetType: typ,
	}
}

func TestPlugInAndLookup(t *testing.T) {
	r := bus.NewRegistry(nil)

	tgt, st := r.PlugIn(plugReq(wire.TargetX360Wired, 1))
	require.Equal(t, wire.StatusSuccess, st)
	require.NotNil(t, tgt)
	assert.Equal(t, 1, r.Count())

	got, ok := r.Lookup(wire.TargetX360Wired, 1)
	require.True(t, ok)
	assert.Same(t, tgt, got)

	// Serial is scoped by type; no cross-type fallback.
	_, ok = r.Lookup(wire.TargetDS4Wired, 1)
	assert.False(t, ok)
}

func TestDuplicatePlugInLeavesOriginal(t *testing.T) {
	r := bus.NewRegistry(nil)

	first, st := r.PlugIn(plugReq(wire.TargetDS4Wired, 9))
	require.Equal(t, wire.StatusSuccess, st)

	dup, st := r.PlugIn(plugReq(wire.TargetDS4Wired, 9))
	assert.Equal(t, wire.StatusAlreadyExists, st)
	assert.Nil(t, dup)

	got, ok := r.Lookup(wire.TargetDS4Wired, 9)
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestSameSerialDifferentTypes(t *testing.T) {
	r := bus.NewRegistry(nil)

	_, st := r.PlugIn(plugReq(wire.TargetX360Wired, 4))
	require.Equal(t, wire.StatusSuccess, st)
	_, st = r.PlugIn(plugReq(wire.TargetDS4Wired, 4))
	require.Equal(t, wire.StatusSuccess, st)
	assert.Equal(t, 2, r.Count())
}

func TestUnknownTypeRejected(t *testing.T) {
	r := bus.NewRegistry(nil)
	_, st := r.PlugIn(plugReq(wire.TargetType(77), 1))
	assert.Equal(t, wire.StatusInvalidParameter, st)
	assert.Equal(t, 0, r.Count())
}

func TestUnplug(t *testing.T) {
	r := bus.NewRegistry(nil)

	assert.Equal(t, wire.StatusDeviceDoesNotExist, r.Unplug(wire.TargetX360Wired, 1))

	tgt, st := r.PlugIn(plugReq(wire.TargetX360Wired, 1))
	require.Equal(t, wire.StatusSuccess, st)

	_, pending, st := tgt.EnqueueNotification()
	require.Equal(t, wire.StatusPending, st)

	assert.Equal(t, wire.StatusSuccess, r.Unplug(wire.TargetX360Wired, 1))

	// The parked request drained before the serial became reusable.
	select {
	case <-pending.Done():
	default:
		t.Fatal("parked request not drained by unplug")
	}
	assert.Equal(t, wire.StatusTargetGone, pending.Result().Status)

	_, ok := r.Lookup(wire.TargetX360Wired, 1)
	assert.False(t, ok)

	// Serial reuse after unplug.
	_, st = r.PlugIn(plugReq(wire.TargetX360Wired, 1))
	assert.Equal(t, wire.StatusSuccess, st)
}

func TestUserIndexAssignment(t *testing.T) {
	r := bus.NewRegistry(nil)

	idx := func(serial uint32) uint32 {
		tgt, ok := r.Lookup(wire.TargetX360Wired, serial)
		require.True(t, ok)
		v, st := tgt.GetAttribute(target.AttrUserIndex)
		require.Equal(t, wire.StatusSuccess, st)
		return v
	}

	for serial := uint32(1); serial <= 3; serial++ {
		_, st := r.PlugIn(plugReq(wire.TargetX360Wired, serial))
		require.Equal(t, wire.StatusSuccess, st)
	}
	assert.Equal(t, uint32(0), idx(1))
	assert.Equal(t, uint32(1), idx(2))
	assert.Equal(t, uint32(2), idx(3))

	// Unplugging frees the lowest index for the next plug-in.
	require.Equal(t, wire.StatusSuccess, r.Unplug(wire.TargetX360Wired, 2))
	_, st := r.PlugIn(plugReq(wire.TargetX360Wired, 4))
	require.Equal(t, wire.StatusSuccess, st)
	assert.Equal(t, uint32(1), idx(4))

	// DS4 targets do not consume user indexes.
	_, st = r.PlugIn(plugReq(wire.TargetDS4Wired, 1))
	require.Equal(t, wire.StatusSuccess, st)
	_, st = r.PlugIn(plugReq(wire.TargetX360Wired, 5))
	require.Equal(t, wire.StatusSuccess, st)
	assert.Equal(t, uint32(3), idx(5))
}

func TestList(t *testing.T) {
	r := bus.NewRegistry(nil)
	_, _ = r.PlugIn(plugReq(wire.TargetX360Wired, 1))
	_, _ = r.PlugIn(plugReq(wire.TargetX360Wired, 2))
	_, _ = r.PlugIn(plugReq(wire.TargetDS4Wired, 3))

	assert.Len(t, r.List(wire.TargetX360Wired), 2)
	assert.Len(t, r.List(wire.TargetDS4Wired), 1)
}

func TestConcurrentPlugInSameSerial(t *testing.T) {
	r := bus.NewRegistry(nil)

	const workers = 16
	var wg sync.WaitGroup
	results := make([]wire.Status, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = r.PlugIn(plugReq(wire.TargetX360Wired, 42))
		}(i)
	}
	wg.Wait()

	success := 0
	for _, st := range results {
		switch st {
		case wire.StatusSuccess:
			success++
		case wire.StatusAlreadyExists:
		default:
			t.Fatalf("unexpected status %v", st)
		}
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, 1, r.Count())
}
