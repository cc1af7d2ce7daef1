package wire

import (
	"encoding/binary"
	"io"
)

// Variant payload sizes in bytes.
const (
	X360ReportSize   = 12
	X360FeedbackSize = 3
	DS4ReportSize    = 9
	DS4FeedbackSize  = 7
)

// X360Report is the input state of an X360-style pad.
// Layout: buttons:u16 leftTrigger:u8 rightTrigger:u8 thumbLX:i16 thumbLY:i16 thumbRX:i16 thumbRY:i16
type X360Report struct {
	Buttons          uint16
	LeftTrigger      uint8
	RightTrigger     uint8
	ThumbLX, ThumbLY int16
	ThumbRX, ThumbRY int16
}

func (r *X360Report) MarshalBinary() ([]byte, error) {
	b := make([]byte, X360ReportSize)
	binary.LittleEndian.PutUint16(b[0:2], r.Buttons)
	b[2] = r.LeftTrigger
	b[3] = r.RightTrigger
	binary.LittleEndian.PutUint16(b[4:6], uint16(r.ThumbLX))
	binary.LittleEndian.PutUint16(b[6:8], uint16(r.ThumbLY))
	binary.LittleEndian.PutUint16(b[8:10], uint16(r.ThumbRX))
	binary.LittleEndian.PutUint16(b[10:12], uint16(r.ThumbRY))
	return b, nil
}

func (r *X360Report) UnmarshalBinary(data []byte) error {
	if len(data) < X360ReportSize {
		return io.ErrUnexpectedEOF
	}
	r.Buttons = binary.LittleEndian.Uint16(data[0:2])
	r.LeftTrigger = data[2]
	r.RightTrigger = data[3]
	r.ThumbLX = int16(binary.LittleEndian.Uint16(data[4:6]))
	r.ThumbLY = int16(binary.LittleEndian.Uint16(data[6:8]))
	r.ThumbRX = int16(binary.LittleEndian.Uint16(data[8:10]))
	r.ThumbRY = int16(binary.LittleEndian.Uint16(data[10:12]))
	return nil
}

// X360Feedback is the device-side output (rumble motors, LED ring
// position) delivered through a completed notification.
// Layout: largeMotor:u8 smallMotor:u8 ledNumber:u8
type X360Feedback struct {
	LargeMotor uint8
	SmallMotor uint8
	LedNumber  uint8
}

func (f *X360Feedback) MarshalBinary() ([]byte, error) {
	return []byte{f.LargeMotor, f.SmallMotor, f.LedNumber}, nil
}

func (f *X360Feedback) UnmarshalBinary(data []byte) error {
	if len(data) < X360FeedbackSize {
		return io.ErrUnexpectedEOF
	}
	f.LargeMotor = data[0]
	f.SmallMotor = data[1]
	f.LedNumber = data[2]
	return nil
}

// X360SubmitReport applies a new input report to an X360 target.
type X360SubmitReport struct {
	Size     uint32
	SerialNo uint32
	Report   X360Report
}

func (s *X360SubmitReport) MarshalBinary() ([]byte, error) {
	hdr := RequestHeader{Size: s.Size, SerialNo: s.SerialNo}
	b, _ := hdr.MarshalBinary()
	rb, err := s.Report.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(b, rb...), nil
}

func (s *X360SubmitReport) UnmarshalBinary(data []byte) error {
	if len(data) < X360SubmitReportSize {
		return io.ErrUnexpectedEOF
	}
	var hdr RequestHeader
	if err := hdr.UnmarshalBinary(data); err != nil {
		return err
	}
	s.Size, s.SerialNo = hdr.Size, hdr.SerialNo
	return s.Report.UnmarshalBinary(data[RequestHeaderSize:])
}

// X360Notification arms a pending feedback request on an X360 target.
// The same layout is the completed output: the feedback fields are
// ignored on input and filled on completion.
type X360Notification struct {
	Size     uint32
	SerialNo uint32
	Feedback X360Feedback
}

func (n *X360Notification) MarshalBinary() ([]byte, error) {
	hdr := RequestHeader{Size: n.Size, SerialNo: n.SerialNo}
	b, _ := hdr.MarshalBinary()
	fb, _ := n.Feedback.MarshalBinary()
	return append(b, fb...), nil
}

func (n *X360Notification) UnmarshalBinary(data []byte) error {
	if len(data) < X360NotificationSize {
		return io.ErrUnexpectedEOF
	}
	var hdr RequestHeader
	if err := hdr.UnmarshalBinary(data); err != nil {
		return err
	}
	n.Size, n.SerialNo = hdr.Size, hdr.SerialNo
	return n.Feedback.UnmarshalBinary(data[RequestHeaderSize:])
}

// DS4Report is the input state of a DS4-style pad.
// Layout: thumbLX:u8 thumbLY:u8 thumbRX:u8 thumbRY:u8 buttons:u16 special:u8 triggerL:u8 triggerR:u8
type DS4Report struct {
	ThumbLX, ThumbLY uint8
	ThumbRX, ThumbRY uint8
	Buttons          uint16
	Special          uint8
	TriggerL         uint8
	TriggerR         uint8
}

func (r *DS4Report) MarshalBinary() ([]byte, error) {
	b := make([]byte, DS4ReportSize)
	b[0] = r.ThumbLX
	b[1] = r.ThumbLY
	b[2] = r.ThumbRX
	b[3] = r.ThumbRY
	binary.LittleEndian.PutUint16(b[4:6], r.Buttons)
	b[6] = r.Special
	b[7] = r.TriggerL
	b[8] = r.TriggerR
	return b, nil
}

func (r *DS4Report) UnmarshalBinary(data []byte) error {
	if len(data) < DS4ReportSize {
		return io.ErrUnexpectedEOF
	}
	r.ThumbLX = data[0]
	r.ThumbLY = data[1]
	r.ThumbRX = data[2]
	r.ThumbRY = data[3]
	r.Buttons = binary.LittleEndian.Uint16(data[4:6])
	r.Special = data[6]
	r.TriggerL = data[7]
	r.TriggerR = data[8]
	return nil
}

// DS4Feedback is the device-side output (rumble, lightbar, flash
// timing) delivered through a completed notification.
// Layout: rumbleSmall:u8 rumbleLarge:u8 ledRed:u8 ledGreen:u8 ledBlue:u8 flashOn:u8 flashOff:u8
type DS4Feedback struct {
	RumbleSmall uint8
	RumbleLarge uint8
	LedRed      uint8
	LedGreen    uint8
	LedBlue     uint8
	FlashOn     uint8 // units of 2.5ms
	FlashOff    uint8 // units of 2.5ms
}

func (f *DS4Feedback) MarshalBinary() ([]byte, error) {
	return []byte{
		f.RumbleSmall,
		f.RumbleLarge,
		f.LedRed,
		f.LedGreen,
		f.LedBlue,
		f.FlashOn,
		f.FlashOff,
	}, nil
}

func (f *DS4Feedback) UnmarshalBinary(data []byte) error {
	if len(data) < DS4FeedbackSize {
		return io.ErrUnexpectedEOF
	}
	f.RumbleSmall = data[0]
	f.RumbleLarge = data[1]
	f.LedRed = data[2]
	f.LedGreen = data[3]
	f.LedBlue = data[4]
	f.FlashOn = data[5]
	f.FlashOff = data[6]
	return nil
}

// DS4SubmitReport applies a new input report to a DS4 target.
type DS4SubmitReport struct {
	Size     uint32
	SerialNo uint32
	Report   DS4Report
}

func (s *DS4SubmitReport) MarshalBinary() ([]byte, error) {
	hdr := RequestHeader{Size: s.Size, SerialNo: s.SerialNo}
	b, _ := hdr.MarshalBinary()
	rb, err := s.Report.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(b, rb...), nil
}

func (s *DS4SubmitReport) UnmarshalBinary(data []byte) error {
	if len(data) < DS4SubmitReportSize {
		return io.ErrUnexpectedEOF
	}
	var hdr RequestHeader
	if err := hdr.UnmarshalBinary(data); err != nil {
		return err
	}
	s.Size, s.SerialNo = hdr.Size, hdr.SerialNo
	return s.Report.UnmarshalBinary(data[RequestHeaderSize:])
}

// DS4Notification arms a pending feedback request on a DS4 target.
// Same in/out layout convention as X360Notification.
type DS4Notification struct {
	Size     uint32
	SerialNo uint32
	Feedback DS4Feedback
}

func (n *DS4Notification) MarshalBinary() ([]byte, error) {
	hdr := RequestHeader{Size: n.Size, SerialNo: n.SerialNo}
	b, _ := hdr.MarshalBinary()
	fb, _ := n.Feedback.MarshalBinary()
	return append(b, fb...), nil
}

func (n *DS4Notification) UnmarshalBinary(data []byte) error {
	if len(data) < DS4NotificationSize {
		return io.ErrUnexpectedEOF
	}
	var hdr RequestHeader
	if err := hdr.UnmarshalBinary(data); err != nil {
		return err
	}
	n.Size, n.SerialNo = hdr.Size, hdr.SerialNo
	return n.Feedback.UnmarshalBinary(data[RequestHeaderSize:])
}
