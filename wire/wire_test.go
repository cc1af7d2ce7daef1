package wire_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtpad/virtpad/wire"
)

func TestPlugInTargetRoundTrip(t *testing.T) {
	in := wire.PlugInTarget{
		Size:       wire.PlugInTargetSize,
		SerialNo:   7,
		TargetType: wire.TargetDS4Wired,
		VendorID:   0x054c,
		ProductID:  0x05c4,
	}
	data, err := in.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, wire.PlugInTargetSize)

	var out wire.PlugInTarget
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, in, out)
}

func TestX360ReportLayout(t *testing.T) {
	r := wire.X360Report{
		Buttons:      0x1234,
		LeftTrigger:  0x55,
		RightTrigger: 0xaa,
		ThumbLX:      -1,
		ThumbLY:      32767,
		ThumbRX:      -32768,
		ThumbRY:      1,
	}
	data, err := r.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x34, 0x12,
		0x55, 0xaa,
		0xff, 0xff,
		0xff, 0x7f,
		0x00, 0x80,
		0x01, 0x00,
	}, data)

	var back wire.X360Report
	require.NoError(t, back.UnmarshalBinary(data))
	assert.Equal(t, r, back)
}

func TestUnmarshalShortBuffers(t *testing.T) {
	type testCase struct {
		name string
		fn   func([]byte) error
		size int
	}

	cases := []testCase{
		{"request header", func(b []byte) error { var v wire.RequestHeader; return v.UnmarshalBinary(b) }, wire.RequestHeaderSize},
		{"check version", func(b []byte) error { var v wire.CheckVersion; return v.UnmarshalBinary(b) }, wire.CheckVersionSize},
		{"plug in", func(b []byte) error { var v wire.PlugInTarget; return v.UnmarshalBinary(b) }, wire.PlugInTargetSize},
		{"x360 notification", func(b []byte) error { var v wire.X360Notification; return v.UnmarshalBinary(b) }, wire.X360NotificationSize},
		{"ds4 report", func(b []byte) error { var v wire.DS4Report; return v.UnmarshalBinary(b) }, wire.DS4ReportSize},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.fn(make([]byte, tc.size-1)), io.ErrUnexpectedEOF)
			assert.NoError(t, tc.fn(make([]byte, tc.size)))
		})
	}
}

func TestNotificationSizes(t *testing.T) {
	assert.Equal(t, 11, wire.X360NotificationSize)
	assert.Equal(t, 15, wire.DS4NotificationSize)
	assert.Equal(t, 20, wire.X360SubmitReportSize)
	assert.Equal(t, 17, wire.DS4SubmitReportSize)
}

func TestDispatchFrameRoundTrip(t *testing.T) {
	in := wire.DispatchFrame{
		Seq:       42,
		Op:        wire.OpX360SubmitReport,
		OutputCap: 0,
		Input:     []byte{1, 2, 3, 4},
	}
	var buf bytes.Buffer
	require.NoError(t, in.Write(&buf))

	ft, err := wire.ReadFrameType(&buf)
	require.NoError(t, err)
	assert.Equal(t, wire.FrameDispatch, ft)

	var out wire.DispatchFrame
	require.NoError(t, out.Read(&buf))
	assert.Equal(t, in, out)
}

func TestFeedbackFrameRoundTrip(t *testing.T) {
	in := wire.FeedbackFrame{
		Seq:        7,
		TargetType: wire.TargetDS4Wired,
		SerialNo:   3,
		Payload:    []byte{0xde, 0xad},
	}
	var buf bytes.Buffer
	require.NoError(t, in.Write(&buf))

	ft, err := wire.ReadFrameType(&buf)
	require.NoError(t, err)
	assert.Equal(t, wire.FrameFeedback, ft)

	var out wire.FeedbackFrame
	require.NoError(t, out.Read(&buf))
	assert.Equal(t, in, out)
}

func TestResponseRoundTrip(t *testing.T) {
	in := wire.Response{Seq: 9, Status: wire.StatusBusy, Output: []byte{}}
	var buf bytes.Buffer
	require.NoError(t, in.Write(&buf))

	var out wire.Response
	require.NoError(t, out.Read(&buf))
	assert.Equal(t, in, out)
}

func TestFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	f := wire.DispatchFrame{Input: make([]byte, wire.MaxFramePayload+1)}
	assert.ErrorIs(t, f.Write(&buf), wire.ErrFrameTooLarge)

	big := wire.DispatchFrame{Seq: 1, Input: make([]byte, 16)}
	require.NoError(t, big.Write(&buf))
	raw := buf.Bytes()
	// Corrupt the declared length beyond the cap.
	raw[13] = 0xff
	raw[14] = 0xff
	raw[15] = 0xff
	raw[16] = 0xff
	r := bytes.NewReader(raw)
	_, err := wire.ReadFrameType(r)
	require.NoError(t, err)
	var out wire.DispatchFrame
	assert.ErrorIs(t, out.Read(r), wire.ErrFrameTooLarge)
}

func TestUnknownFrameType(t *testing.T) {
	_, err := wire.ReadFrameType(bytes.NewReader([]byte{0x77}))
	assert.Error(t, err)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "success", wire.StatusSuccess.String())
	assert.Equal(t, "pending", wire.StatusPending.String())
	assert.True(t, wire.StatusTargetGone.Terminal())
	assert.False(t, wire.StatusPending.Terminal())
}
