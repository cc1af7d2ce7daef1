// Package wire defines the fixed-layout structures, operation codes and
// status taxonomy crossing the bus transport boundary. All multi-byte
// fields are little-endian. Every request begins with a declared Size
// field equal to the structure's fixed size; the dispatcher rejects any
// request whose declared size mismatches either the expected constant
// or the transport-reported length.
package wire

import (
	"encoding/binary"
	"io"
)

// Fixed structure sizes in bytes.
const (
	RequestHeaderSize    = 8
	CheckVersionSize     = 8
	PlugInTargetSize     = 16
	UnplugTargetSize     = 12
	X360SubmitReportSize = RequestHeaderSize + X360ReportSize
	X360NotificationSize = RequestHeaderSize + X360FeedbackSize
	X360GetUserIndexSize = 12
	DS4SubmitReportSize  = RequestHeaderSize + DS4ReportSize
	DS4NotificationSize  = RequestHeaderSize + DS4FeedbackSize
)

// RequestHeader prefixes every target-scoped request.
// Layout: size:u32 serialNo:u32
type RequestHeader struct {
	Size     uint32
	SerialNo uint32
}

func (h *RequestHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, RequestHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Size)
	binary.LittleEndian.PutUint32(b[4:8], h.SerialNo)
	return b, nil
}

func (h *RequestHeader) UnmarshalBinary(data []byte) error {
	if len(data) < RequestHeaderSize {
		return io.ErrUnexpectedEOF
	}
	h.Size = binary.LittleEndian.Uint32(data[0:4])
	h.SerialNo = binary.LittleEndian.Uint32(data[4:8])
	return nil
}

// CheckVersion asks the bus whether it speaks the caller's protocol
// version.
// Layout: size:u32 version:u32
type CheckVersion struct {
	Size    uint32
	Version uint32
}

func (c *CheckVersion) MarshalBinary() ([]byte, error) {
	b := make([]byte, CheckVersionSize)
	binary.LittleEndian.PutUint32(b[0:4], c.Size)
	binary.LittleEndian.PutUint32(b[4:8], c.Version)
	return b, nil
}

func (c *CheckVersion) UnmarshalBinary(data []byte) error {
	if len(data) < CheckVersionSize {
		return io.ErrUnexpectedEOF
	}
	c.Size = binary.LittleEndian.Uint32(data[0:4])
	c.Version = binary.LittleEndian.Uint32(data[4:8])
	return nil
}

// PlugInTarget requests creation and registration of a new target.
// VendorID/ProductID zero selects the variant defaults.
// Layout: size:u32 serialNo:u32 targetType:u32 vendorId:u16 productId:u16
type PlugInTarget struct {
	Size       uint32
	SerialNo   uint32
	TargetType TargetType
	VendorID   uint16
	ProductID  uint16
}

func (p *PlugInTarget) MarshalBinary() ([]byte, error) {
	b := make([]byte, PlugInTargetSize)
	binary.LittleEndian.PutUint32(b[0:4], p.Size)
	binary.LittleEndian.PutUint32(b[4:8], p.SerialNo)
	binary.LittleEndian.PutUint32(b[8:12], uint32(p.TargetType))
	binary.LittleEndian.PutUint16(b[12:14], p.VendorID)
	binary.LittleEndian.PutUint16(b[14:16], p.ProductID)
	return b, nil
}

func (p *PlugInTarget) UnmarshalBinary(data []byte) error {
	if len(data) < PlugInTargetSize {
		return io.ErrUnexpectedEOF
	}
	p.Size = binary.LittleEndian.Uint32(data[0:4])
	p.SerialNo = binary.LittleEndian.Uint32(data[4:8])
	p.TargetType = TargetType(binary.LittleEndian.Uint32(data[8:12]))
	p.VendorID = binary.LittleEndian.Uint16(data[12:14])
	p.ProductID = binary.LittleEndian.Uint16(data[14:16])
	return nil
}

// UnplugTarget requests removal of a live target.
// Layout: size:u32 serialNo:u32 targetType:u32
type UnplugTarget struct {
	Size       uint32
	SerialNo   uint32
	TargetType TargetType
}

func (u *UnplugTarget) MarshalBinary() ([]byte, error) {
	b := make([]byte, UnplugTargetSize)
	binary.LittleEndian.PutUint32(b[0:4], u.Size)
	binary.LittleEndian.PutUint32(b[4:8], u.SerialNo)
	binary.LittleEndian.PutUint32(b[8:12], uint32(u.TargetType))
	return b, nil
}

func (u *UnplugTarget) UnmarshalBinary(data []byte) error {
	if len(data) < UnplugTargetSize {
		return io.ErrUnexpectedEOF
	}
	u.Size = binary.LittleEndian.Uint32(data[0:4])
	u.SerialNo = binary.LittleEndian.Uint32(data[4:8])
	u.TargetType = TargetType(binary.LittleEndian.Uint32(data[8:12]))
	return nil
}

// X360GetUserIndex reads the user index assigned to an X360 target at
// plug-in. The same layout serves as request (UserIndex ignored) and
// completed output (UserIndex filled).
// Layout: size:u32 serialNo:u32 userIndex:u32
type X360GetUserIndex struct {
	Size      uint32
	SerialNo  uint32
	UserIndex uint32
}

func (g *X360GetUserIndex) MarshalBinary() ([]byte, error) {
	b := make([]byte, X360GetUserIndexSize)
	binary.LittleEndian.PutUint32(b[0:4], g.Size)
	binary.LittleEndian.PutUint32(b[4:8], g.SerialNo)
	binary.LittleEndian.PutUint32(b[8:12], g.UserIndex)
	return b, nil
}

func (g *X360GetUserIndex) UnmarshalBinary(data []byte) error {
	if len(data) < X360GetUserIndexSize {
		return io.ErrUnexpectedEOF
	}
	g.Size = binary.LittleEndian.Uint32(data[0:4])
	g.SerialNo = binary.LittleEndian.Uint32(data[4:8])
	g.UserIndex = binary.LittleEndian.Uint32(data[8:12])
	return nil
}
