// Package busclient provides a Go client for the virtpad bus control
// protocol.
package busclient

import (
	"context"
	"fmt"

	"github.com/virtpad/virtpad/wire"
)

// StatusError is returned when the bus answered with a non-success
// status.
type StatusError struct {
	Op     wire.OpCode
	Status wire.Status
}

func (e *StatusError) Error() string {
	if e.Op == 0 {
		return fmt.Sprintf("push feedback: %s", e.Status.String())
	}
	return fmt.Sprintf("%s: %s", e.Op.String(), e.Status.String())
}

// Client provides a high-level interface to the virtpad bus, handling
// request encoding, response decoding, and error handling.
type Client struct{ transport *Transport }

// New constructs a high-level client using the internal low-level Transport.
// The addr parameter specifies the TCP address (host:port) of the bus server.
func New(addr string) *Client { return &Client{transport: NewTransport(addr)} }

// NewWithPassword constructs a client that authenticates with the given password.
func NewWithPassword(addr, password string) *Client {
	return &Client{transport: NewTransportWithPassword(addr, password)}
}

// NewWithConfig constructs a client with custom transport timeouts.
func NewWithConfig(addr string, cfg *Config) *Client {
	return &Client{transport: NewTransportWithConfig(addr, cfg)}
}

// WithTransport constructs a Client using a custom Transport.
func WithTransport(t *Transport) *Client { return &Client{transport: t} }

// Close tears down the client's connection.
func (c *Client) Close() error { return c.transport.Close() }

func (c *Client) dispatch(ctx context.Context, op wire.OpCode, input []byte, outputCap uint32, blocking bool) (*wire.Response, error) {
	resp, err := c.transport.Dispatch(ctx, op, input, outputCap, blocking)
	if err != nil {
		return nil, err
	}
	if resp.Status != wire.StatusSuccess {
		return nil, &StatusError{Op: op, Status: resp.Status}
	}
	return resp, nil
}

// CheckVersion verifies that the bus speaks this client's protocol
// version.
func (c *Client) CheckVersion(ctx context.Context) error {
	req := wire.CheckVersion{Size: wire.CheckVersionSize, Version: wire.ProtocolVersion}
	input, err := req.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = c.dispatch(ctx, wire.OpCheckVersion, input, 0, false)
	return err
}

// PlugIn creates and registers a target. Zero vendor/product IDs select
// the variant defaults.
func (c *Client) PlugIn(ctx context.Context, typ wire.TargetType, serial uint32, vendorID, productID uint16) error {
	req := wire.PlugInTarget{
		Size:       wire.PlugInTargetSize,
		SerialNo:   serial,
		TargetType: typ,
		VendorID:   vendorID,
		ProductID:  productID,
	}
	input, err := req.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = c.dispatch(ctx, wire.OpPlugInTarget, input, 0, false)
	return err
}

// Unplug removes a live target.
func (c *Client) Unplug(ctx context.Context, typ wire.TargetType, serial uint32) error {
	req := wire.UnplugTarget{Size: wire.UnplugTargetSize, SerialNo: serial, TargetType: typ}
	input, err := req.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = c.dispatch(ctx, wire.OpUnplugTarget, input, 0, false)
	return err
}

// SubmitX360Report applies an input report to an X360 target.
func (c *Client) SubmitX360Report(ctx context.Context, serial uint32, report wire.X360Report) error {
	req := wire.X360SubmitReport{Size: wire.X360SubmitReportSize, SerialNo: serial, Report: report}
	input, err := req.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = c.dispatch(ctx, wire.OpX360SubmitReport, input, 0, false)
	return err
}

// SubmitDS4Report applies an input report to a DS4 target.
func (c *Client) SubmitDS4Report(ctx context.Context, serial uint32, report wire.DS4Report) error {
	req := wire.DS4SubmitReport{Size: wire.DS4SubmitReportSize, SerialNo: serial, Report: report}
	input, err := req.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = c.dispatch(ctx, wire.OpDS4SubmitReport, input, 0, false)
	return err
}

// RequestX360Notification blocks until the X360 target receives
// feedback, is unplugged, or ctx is cancelled.
func (c *Client) RequestX360Notification(ctx context.Context, serial uint32) (*wire.X360Feedback, error) {
	req := wire.X360Notification{Size: wire.X360NotificationSize, SerialNo: serial}
	input, err := req.MarshalBinary()
	if err != nil {
		return nil, err
	}
	resp, err := c.dispatch(ctx, wire.OpX360RequestNotification, input, wire.X360NotificationSize, true)
	if err != nil {
		return nil, err
	}
	var out wire.X360Notification
	if err := out.UnmarshalBinary(resp.Output); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &out.Feedback, nil
}

// RequestDS4Notification blocks until the DS4 target receives feedback,
// is unplugged, or ctx is cancelled.
func (c *Client) RequestDS4Notification(ctx context.Context, serial uint32) (*wire.DS4Feedback, error) {
	req := wire.DS4Notification{Size: wire.DS4NotificationSize, SerialNo: serial}
	input, err := req.MarshalBinary()
	if err != nil {
		return nil, err
	}
	resp, err := c.dispatch(ctx, wire.OpDS4RequestNotification, input, wire.DS4NotificationSize, true)
	if err != nil {
		return nil, err
	}
	var out wire.DS4Notification
	if err := out.UnmarshalBinary(resp.Output); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &out.Feedback, nil
}

// GetUserIndex reads the user index assigned to an X360 target.
func (c *Client) GetUserIndex(ctx context.Context, serial uint32) (uint32, error) {
	req := wire.X360GetUserIndex{Size: wire.X360GetUserIndexSize, SerialNo: serial}
	input, err := req.MarshalBinary()
	if err != nil {
		return 0, err
	}
	resp, err := c.dispatch(ctx, wire.OpX360GetUserIndex, input, wire.X360GetUserIndexSize, false)
	if err != nil {
		return 0, err
	}
	var out wire.X360GetUserIndex
	if err := out.UnmarshalBinary(resp.Output); err != nil {
		return 0, fmt.Errorf("decode user index: %w", err)
	}
	return out.UserIndex, nil
}

// PushX360Feedback delivers rumble/LED feedback to an X360 target,
// completing its parked notification request if one is waiting.
func (c *Client) PushX360Feedback(ctx context.Context, serial uint32, fb wire.X360Feedback) error {
	payload, err := fb.MarshalBinary()
	if err != nil {
		return err
	}
	return c.pushFeedback(ctx, wire.TargetX360Wired, serial, payload)
}

// PushDS4Feedback delivers rumble/lightbar feedback to a DS4 target.
func (c *Client) PushDS4Feedback(ctx context.Context, serial uint32, fb wire.DS4Feedback) error {
	payload, err := fb.MarshalBinary()
	if err != nil {
		return err
	}
	return c.pushFeedback(ctx, wire.TargetDS4Wired, serial, payload)
}

func (c *Client) pushFeedback(ctx context.Context, typ wire.TargetType, serial uint32, payload []byte) error {
	resp, err := c.transport.PushFeedback(ctx, typ, serial, payload)
	if err != nil {
		return err
	}
	if resp.Status != wire.StatusSuccess {
		return &StatusError{Status: resp.Status}
	}
	return nil
}
