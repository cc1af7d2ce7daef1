package server_test

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtpad/virtpad/bus"
	"github.com/virtpad/virtpad/busclient"
	"github.com/virtpad/virtpad/internal/server"
	"github.com/virtpad/virtpad/wire"
)

func startServer(t *testing.T, password string) string {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := bus.NewRegistry(logger)
	srv, err := server.New(server.Config{
		Addr:              "127.0.0.1:0",
		Password:          password,
		ConnectionTimeout: time.Second,
	}, registry, logger, nil)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv.Addr()
}

func TestVersionPlugSubmit(t *testing.T) {
	addr := startServer(t, "")
	c := busclient.New(addr)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.CheckVersion(ctx))

	require.NoError(t, c.PlugIn(ctx, wire.TargetX360Wired, 1, 0, 0))
	require.NoError(t, c.SubmitX360Report(ctx, 1, wire.X360Report{Buttons: 0x10}))

	err := c.SubmitX360Report(ctx, 2, wire.X360Report{})
	var statusErr *busclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, wire.StatusDeviceDoesNotExist, statusErr.Status)

	idx, err := c.GetUserIndex(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)

	err = c.PlugIn(ctx, wire.TargetX360Wired, 1, 0, 0)
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, wire.StatusAlreadyExists, statusErr.Status)

	require.NoError(t, c.Unplug(ctx, wire.TargetX360Wired, 1))
}

func TestNotificationFeedbackFlow(t *testing.T) {
	addr := startServer(t, "")
	ctx := context.Background()

	ctl := busclient.New(addr)
	defer ctl.Close()
	require.NoError(t, ctl.PlugIn(ctx, wire.TargetX360Wired, 1, 0, 0))

	watcher := busclient.New(addr)
	defer watcher.Close()

	type watchResult struct {
		fb  *wire.X360Feedback
		err error
	}
	got := make(chan watchResult, 1)
	go func() {
		fb, err := watcher.RequestX360Notification(ctx, 1)
		got <- watchResult{fb, err}
	}()

	// Give the watcher time to park before feedback arrives.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, ctl.PushX360Feedback(ctx, 1, wire.X360Feedback{LargeMotor: 80, SmallMotor: 40, LedNumber: 1}))

	select {
	case res := <-got:
		require.NoError(t, res.err)
		assert.Equal(t, uint8(80), res.fb.LargeMotor)
		assert.Equal(t, uint8(40), res.fb.SmallMotor)
		assert.Equal(t, uint8(1), res.fb.LedNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never received feedback")
	}
}

func TestBufferedFeedbackReturnsImmediately(t *testing.T) {
	addr := startServer(t, "")
	ctx := context.Background()

	c := busclient.New(addr)
	defer c.Close()
	require.NoError(t, c.PlugIn(ctx, wire.TargetDS4Wired, 2, 0, 0))
	require.NoError(t, c.PushDS4Feedback(ctx, 2, wire.DS4Feedback{LedRed: 255}))

	fb, err := c.RequestDS4Notification(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), fb.LedRed)
}

func TestSecondWatcherBusyAndDisconnectFreesSlot(t *testing.T) {
	addr := startServer(t, "")
	ctx := context.Background()

	ctl := busclient.New(addr)
	defer ctl.Close()
	require.NoError(t, ctl.PlugIn(ctx, wire.TargetX360Wired, 1, 0, 0))

	first := busclient.New(addr)
	firstErr := make(chan error, 1)
	go func() {
		_, err := first.RequestX360Notification(ctx, 1)
		firstErr <- err
	}()
	time.Sleep(100 * time.Millisecond)

	second := busclient.New(addr)
	defer second.Close()
	_, err := second.RequestX360Notification(ctx, 1)
	var statusErr *busclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, wire.StatusBusy, statusErr.Status)

	// Dropping the first watcher cancels its parked request and frees
	// the slot.
	require.NoError(t, first.Close())
	select {
	case <-firstErr:
	case <-time.After(2 * time.Second):
		t.Fatal("first watcher did not unblock on close")
	}
	time.Sleep(100 * time.Millisecond)

	got := make(chan error, 1)
	go func() {
		_, err := second.RequestX360Notification(ctx, 1)
		got <- err
	}()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, ctl.PushX360Feedback(ctx, 1, wire.X360Feedback{LargeMotor: 1}))

	select {
	case err := <-got:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second watcher never received feedback")
	}
}

func TestUnplugDrainsWatcher(t *testing.T) {
	addr := startServer(t, "")
	ctx := context.Background()

	ctl := busclient.New(addr)
	defer ctl.Close()
	require.NoError(t, ctl.PlugIn(ctx, wire.TargetDS4Wired, 7, 0, 0))

	watcher := busclient.New(addr)
	defer watcher.Close()
	got := make(chan error, 1)
	go func() {
		_, err := watcher.RequestDS4Notification(ctx, 7)
		got <- err
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, ctl.Unplug(ctx, wire.TargetDS4Wired, 7))

	select {
	case err := <-got:
		var statusErr *busclient.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, wire.StatusTargetGone, statusErr.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher not drained by unplug")
	}

	// Serial is reusable once the drain finished.
	require.NoError(t, ctl.PlugIn(ctx, wire.TargetDS4Wired, 7, 0, 0))
}

func TestReusedSequenceNumberRejectedWhileParked(t *testing.T) {
	addr := startServer(t, "")
	ctx := context.Background()

	ctl := busclient.New(addr)
	defer ctl.Close()
	require.NoError(t, ctl.PlugIn(ctx, wire.TargetX360Wired, 1, 0, 0))
	require.NoError(t, ctl.PlugIn(ctx, wire.TargetX360Wired, 2, 0, 0))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	br := bufio.NewReader(conn)

	parkFrame := func(serial uint32) *wire.DispatchFrame {
		req := wire.X360Notification{Size: wire.X360NotificationSize, SerialNo: serial}
		input, err := req.MarshalBinary()
		require.NoError(t, err)
		return &wire.DispatchFrame{
			Seq:       5,
			Op:        wire.OpX360RequestNotification,
			OutputCap: wire.X360NotificationSize,
			Input:     input,
		}
	}

	require.NoError(t, parkFrame(1).Write(conn))
	time.Sleep(100 * time.Millisecond)

	// A second park on a different target reusing the sequence number is
	// refused and must not disturb the first request.
	require.NoError(t, parkFrame(2).Write(conn))
	var resp wire.Response
	require.NoError(t, resp.Read(br))
	assert.Equal(t, uint32(5), resp.Seq)
	assert.Equal(t, wire.StatusInvalidParameter, resp.Status)

	// The refused request released its slot, so the target accepts a
	// fresh watcher.
	other := busclient.New(addr)
	defer other.Close()
	watchCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = other.RequestX360Notification(watchCtx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The original parked request still completes on feedback.
	require.NoError(t, ctl.PushX360Feedback(ctx, 1, wire.X360Feedback{LargeMotor: 9}))
	require.NoError(t, resp.Read(br))
	assert.Equal(t, uint32(5), resp.Seq)
	assert.Equal(t, wire.StatusSuccess, resp.Status)
}

func TestAuthentication(t *testing.T) {
	addr := startServer(t, "sekrit")
	ctx := context.Background()

	wrong := busclient.NewWithPassword(addr, "nope")
	defer wrong.Close()
	assert.Error(t, wrong.CheckVersion(ctx))

	none := busclient.New(addr)
	defer none.Close()
	assert.Error(t, none.CheckVersion(ctx))

	right := busclient.NewWithPassword(addr, "sekrit")
	defer right.Close()
	require.NoError(t, right.CheckVersion(ctx))
	require.NoError(t, right.PlugIn(ctx, wire.TargetX360Wired, 1, 0, 0))
}

func TestContextCancelsBlockedNotification(t *testing.T) {
	addr := startServer(t, "")

	ctl := busclient.New(addr)
	defer ctl.Close()
	require.NoError(t, ctl.PlugIn(context.Background(), wire.TargetX360Wired, 1, 0, 0))

	watcher := busclient.New(addr)
	defer watcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := watcher.RequestX360Notification(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
