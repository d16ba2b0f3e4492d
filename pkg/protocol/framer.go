package protocol

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// DefaultCompressThreshold is the payload size above which frames are
// compressed.
const DefaultCompressThreshold = 4 * 1024

// zstdEncoder and zstdDecoder are shared; both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("protocol: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(HardMaxAllocation),
	)
	if err != nil {
		panic("protocol: zstd decoder initialization failed: " + err.Error())
	}
}

// Framer turns messages into frames and back using one codec.
type Framer struct {
	codec     Codec
	threshold int
}

// NewFramer creates a Framer. Payloads larger than threshold bytes are
// compressed when that makes them smaller; a negative threshold disables
// compression.
func NewFramer(codec Codec, threshold int) *Framer {
	if codec == nil {
		codec = Binary
	}
	return &Framer{codec: codec, threshold: threshold}
}

// Codec returns the framer's codec.
func (f *Framer) Codec() Codec {
	return f.codec
}

// Encode encodes msg into a complete frame.
func (f *Framer) Encode(msg *Message) ([]byte, error) {
	payload, err := f.codec.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.Type, err)
	}

	frame := NewFrame(msg.Type, payload)
	if f.threshold >= 0 && len(payload) > f.threshold {
		if compressed := zstdEncoder.EncodeAll(payload, nil); len(compressed) < len(payload) {
			frame.Payload = compressed
			frame.Flags |= FlagCompressed
		}
	}
	if len(frame.Payload) > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}
	return frame.Encode(), nil
}

// Decode decodes a complete frame into a message.
func (f *Framer) Decode(data []byte) (*Message, error) {
	frame, err := DecodeFrame(data)
	if err != nil {
		return nil, err
	}

	payload := frame.Payload
	if frame.Flags.Has(FlagCompressed) {
		payload, err = zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("protocol: decompress %s: %w", frame.Type, err)
		}
	}

	msg, err := f.codec.Unmarshal(frame.Type, payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", frame.Type, err)
	}
	return msg, nil
}
