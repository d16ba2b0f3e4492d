package protocol

import (
	"errors"
	"io"
)

// Frame constants.
const (
	// FrameHeaderSize is the size of the frame header in bytes.
	FrameHeaderSize = 6

	// MaxPayloadSize is the largest payload a frame may carry.
	MaxPayloadSize = HardMaxAllocation
)

// FrameType identifies the message carried by a frame.
type FrameType uint8

const (
	FrameMount   FrameType = 0x01 // Server → Client initial tree
	FramePatches FrameType = 0x02 // Server → Client patches
	FrameEvent   FrameType = 0x03 // Client → Server events
	FrameError   FrameType = 0x04 // Server → Client rejection
	FramePing    FrameType = 0x05 // Either direction
	FramePong    FrameType = 0x06 // Reply to ping
	FrameClose   FrameType = 0x07 // Session close
)

// String returns the string representation of the frame type.
func (ft FrameType) String() string {
	switch ft {
	case FrameMount:
		return "Mount"
	case FramePatches:
		return "Patches"
	case FrameEvent:
		return "Event"
	case FrameError:
		return "Error"
	case FramePing:
		return "Ping"
	case FramePong:
		return "Pong"
	case FrameClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// Valid reports whether ft is a known frame type.
func (ft FrameType) Valid() bool {
	return ft >= FrameMount && ft <= FrameClose
}

// FrameFlags are optional flags for frame processing.
type FrameFlags uint8

const (
	FlagCompressed FrameFlags = 0x01 // Payload is zstd compressed
)

// Has returns true if the flags contain the specified flag.
func (ff FrameFlags) Has(flag FrameFlags) bool {
	return ff&flag != 0
}

// Frame errors.
var (
	ErrFrameTooLarge    = errors.New("protocol: frame payload too large")
	ErrInvalidFrameType = errors.New("protocol: invalid frame type")
)

// Frame represents a protocol frame with header and payload.
//
// Wire format (6 bytes header + variable payload):
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Frame Type  │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (4 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//	│                                                             │
//	│  Payload (variable length)                                  │
//	│                                                             │
//	└─────────────────────────────────────────────────────────────┘
type Frame struct {
	Type    FrameType
	Flags   FrameFlags
	Payload []byte
}

// Encode encodes the frame to bytes including the header.
func (f *Frame) Encode() []byte {
	e := NewEncoderWithCap(FrameHeaderSize + len(f.Payload))
	f.EncodeTo(e)
	return e.Bytes()
}

// EncodeTo encodes the frame using the provided encoder.
func (f *Frame) EncodeTo(e *Encoder) {
	e.WriteUint8(byte(f.Type))
	e.WriteUint8(byte(f.Flags))
	e.WriteUint32(uint32(len(f.Payload)))
	e.WriteBytes(f.Payload)
}

// DecodeFrame decodes a frame from bytes.
// The input must contain the header and the full payload, and nothing more.
func DecodeFrame(data []byte) (*Frame, error) {
	ft, flags, length, err := DecodeFrameHeader(data)
	if err != nil {
		return nil, err
	}
	if length > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}
	if len(data) < FrameHeaderSize+length {
		return nil, io.ErrUnexpectedEOF
	}
	if len(data) > FrameHeaderSize+length {
		return nil, ErrTrailingData
	}

	payload := make([]byte, length)
	copy(payload, data[FrameHeaderSize:])

	return &Frame{
		Type:    ft,
		Flags:   flags,
		Payload: payload,
	}, nil
}

// DecodeFrameHeader decodes just the frame header, returning type, flags, and payload length.
func DecodeFrameHeader(data []byte) (FrameType, FrameFlags, int, error) {
	d := NewDecoder(data)
	t, err := d.ReadByte()
	if err != nil {
		return 0, 0, 0, err
	}
	flags, err := d.ReadByte()
	if err != nil {
		return 0, 0, 0, err
	}
	length, err := d.ReadUint32()
	if err != nil {
		return 0, 0, 0, err
	}

	ft := FrameType(t)
	if !ft.Valid() {
		return 0, 0, 0, ErrInvalidFrameType
	}
	return ft, FrameFlags(flags), int(length), nil
}

// ReadFrame reads a complete frame from an io.Reader.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	ft, flags, length, err := DecodeFrameHeader(header)
	if err != nil {
		return nil, err
	}
	if length > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	return &Frame{
		Type:    ft,
		Flags:   flags,
		Payload: payload,
	}, nil
}

// WriteFrame writes a complete frame to an io.Writer.
func WriteFrame(w io.Writer, f *Frame) error {
	if len(f.Payload) > MaxPayloadSize {
		return ErrFrameTooLarge
	}

	_, err := w.Write(f.Encode())
	return err
}

// NewFrame creates a new frame with the given type and payload.
func NewFrame(ft FrameType, payload []byte) *Frame {
	return &Frame{
		Type:    ft,
		Payload: payload,
	}
}
