package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Transport frames carry operations and feedback over the control
// connection. Frame headers are big-endian; the embedded operation
// payloads keep the little-endian layout defined in this package.
const (
	FrameDispatch byte = 0
	FrameFeedback byte = 1
)

// MaxFramePayload caps the variable-length portion of any frame.
const MaxFramePayload = 4096

// ErrFrameTooLarge is returned when a frame declares a payload above
// MaxFramePayload.
var ErrFrameTooLarge = errors.New("frame payload too large")

// DispatchFrame submits one operation. Seq correlates the response;
// responses to parked notification requests arrive out of order.
type DispatchFrame struct {
	Seq       uint32
	Op        OpCode
	OutputCap uint32
	Input     []byte
}

func (f *DispatchFrame) Write(w io.Writer) error {
	if len(f.Input) > MaxFramePayload {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 17+len(f.Input))
	buf[0] = FrameDispatch
	binary.BigEndian.PutUint32(buf[1:5], f.Seq)
	binary.BigEndian.PutUint32(buf[5:9], uint32(f.Op))
	binary.BigEndian.PutUint32(buf[9:13], f.OutputCap)
	binary.BigEndian.PutUint32(buf[13:17], uint32(len(f.Input)))
	copy(buf[17:], f.Input)
	_, err := w.Write(buf)
	return err
}

// Read decodes the frame body. The leading type byte must already be
// consumed.
func (f *DispatchFrame) Read(r io.Reader) error {
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	f.Seq = binary.BigEndian.Uint32(hdr[0:4])
	f.Op = OpCode(binary.BigEndian.Uint32(hdr[4:8]))
	f.OutputCap = binary.BigEndian.Uint32(hdr[8:12])
	n := binary.BigEndian.Uint32(hdr[12:16])
	if n > MaxFramePayload {
		return ErrFrameTooLarge
	}
	f.Input = make([]byte, n)
	if _, err := io.ReadFull(r, f.Input); err != nil {
		return err
	}
	return nil
}

// FeedbackFrame pushes device feedback (rumble, LEDs) toward a target,
// completing its parked notification request if one is waiting.
type FeedbackFrame struct {
	Seq        uint32
	TargetType TargetType
	SerialNo   uint32
	Payload    []byte
}

func (f *FeedbackFrame) Write(w io.Writer) error {
	if len(f.Payload) > MaxFramePayload {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 17+len(f.Payload))
	buf[0] = FrameFeedback
	binary.BigEndian.PutUint32(buf[1:5], f.Seq)
	binary.BigEndian.PutUint32(buf[5:9], uint32(f.TargetType))
	binary.BigEndian.PutUint32(buf[9:13], f.SerialNo)
	binary.BigEndian.PutUint32(buf[13:17], uint32(len(f.Payload)))
	copy(buf[17:], f.Payload)
	_, err := w.Write(buf)
	return err
}

// Read decodes the frame body. The leading type byte must already be
// consumed.
func (f *FeedbackFrame) Read(r io.Reader) error {
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	f.Seq = binary.BigEndian.Uint32(hdr[0:4])
	f.TargetType = TargetType(binary.BigEndian.Uint32(hdr[4:8]))
	f.SerialNo = binary.BigEndian.Uint32(hdr[8:12])
	n := binary.BigEndian.Uint32(hdr[12:16])
	if n > MaxFramePayload {
		return ErrFrameTooLarge
	}
	f.Payload = make([]byte, n)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return err
	}
	return nil
}

// Response answers one frame, matched by Seq.
type Response struct {
	Seq    uint32
	Status Status
	Output []byte
}

func (resp *Response) Write(w io.Writer) error {
	if len(resp.Output) > MaxFramePayload {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 12+len(resp.Output))
	binary.BigEndian.PutUint32(buf[0:4], resp.Seq)
	binary.BigEndian.PutUint32(buf[4:8], uint32(resp.Status))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(resp.Output)))
	copy(buf[12:], resp.Output)
	_, err := w.Write(buf)
	return err
}

func (resp *Response) Read(r io.Reader) error {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	resp.Seq = binary.BigEndian.Uint32(hdr[0:4])
	resp.Status = Status(binary.BigEndian.Uint32(hdr[4:8]))
	n := binary.BigEndian.Uint32(hdr[8:12])
	if n > MaxFramePayload {
		return ErrFrameTooLarge
	}
	resp.Output = make([]byte, n)
	if _, err := io.ReadFull(r, resp.Output); err != nil {
		return err
	}
	return nil
}

// ReadFrameType reads the leading type byte of the next frame.
func ReadFrameType(r io.Reader) (byte, error) {
	var t [1]byte
	if _, err := io.ReadFull(r, t[:]); err != nil {
		return 0, err
	}
	if t[0] != FrameDispatch && t[0] != FrameFeedback {
		return 0, fmt.Errorf("unknown frame type %d", t[0])
	}
	return t[0], nil
}
