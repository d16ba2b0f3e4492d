package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"slices"
)

// Decoding limits. A peer controls every length and count on the wire, so
// each one is checked before anything is allocated.
const (
	// DefaultMaxAllocation bounds a single string read by the decoder.
	DefaultMaxAllocation = 4 << 20

	// HardMaxAllocation bounds a frame payload, compressed or not.
	HardMaxAllocation = 16 << 20

	// MaxCollectionCount bounds every decoded count: attributes, children,
	// patches, map entries.
	MaxCollectionCount = 100_000

	// MaxVNodeDepth bounds the nesting of decoded trees. A component tree
	// counts as one level.
	MaxVNodeDepth = 256

	// MaxPatchDepth bounds nested UpdateComponent patches.
	MaxPatchDepth = 128
)

var (
	ErrVarintOverflow     = errors.New("protocol: varint overflow")
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")
	ErrCollectionTooLarge = errors.New("protocol: collection count exceeds limit")
	ErrTrailingData       = errors.New("protocol: trailing data after message")
	ErrMaxDepthExceeded   = errors.New("protocol: maximum nesting depth exceeded")
)

// Encoder builds a binary payload. Strings and byte runs are written with a
// uvarint length prefix.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder with a small preallocated buffer.
func NewEncoder() *Encoder { return NewEncoderWithCap(256) }

// NewEncoderWithCap returns an encoder whose buffer holds n bytes before
// growing.
func NewEncoderWithCap(n int) *Encoder {
	return &Encoder{buf: make([]byte, 0, n)}
}

// Bytes returns the encoded payload. It aliases the encoder's buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) WriteUint8(b byte) { e.buf = append(e.buf, b) }

func (e *Encoder) WriteBytes(b []byte) { e.buf = append(e.buf, b...) }

func (e *Encoder) WriteUvarint(v uint64) { e.buf = binary.AppendUvarint(e.buf, v) }

// WriteUint32 writes v big-endian in four bytes.
func (e *Encoder) WriteUint32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }

func (e *Encoder) WriteString(s string) {
	e.buf = binary.AppendUvarint(e.buf, uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteStringMap writes a count and then the pairs in key order, so equal
// maps encode to equal bytes.
func (e *Encoder) WriteStringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	e.WriteUvarint(uint64(len(keys)))
	for _, k := range keys {
		e.WriteString(k)
		e.WriteString(m[k])
	}
}

// Decoder reads a payload written by Encoder. Reads past the end return
// io.ErrUnexpectedEOF.
type Decoder struct {
	buf []byte
	pos int
}

func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

// EOF reports whether every byte has been consumed.
func (d *Decoder) EOF() bool { return d.pos >= len(d.buf) }

func (d *Decoder) remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) ReadByte() (byte, error) {
	if d.EOF() {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	switch {
	case n == 0:
		return 0, io.ErrUnexpectedEOF
	case n < 0:
		return 0, ErrVarintOverflow
	}
	d.pos += n
	return v, nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadUvarint()
	if err != nil {
		return "", err
	}
	if n > uint64(d.remaining()) {
		return "", io.ErrUnexpectedEOF
	}
	if n > DefaultMaxAllocation {
		return "", ErrAllocationTooLarge
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

// ReadCollectionCount reads a count and rejects one above
// MaxCollectionCount or larger than the bytes left, since every item takes
// at least one byte.
func (d *Decoder) ReadCollectionCount() (int, error) {
	n, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > MaxCollectionCount {
		return 0, ErrCollectionTooLarge
	}
	if n > uint64(d.remaining()) {
		return 0, io.ErrUnexpectedEOF
	}
	return int(n), nil
}

// ReadStringMap reads a map written by WriteStringMap. An empty map reads
// as nil.
func (d *Decoder) ReadStringMap() (map[string]string, error) {
	n, err := d.ReadCollectionCount()
	if err != nil || n == 0 {
		return nil, err
	}
	m := make(map[string]string, n)
	for range n {
		k, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		if m[k], err = d.ReadString(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// nesting counts recursion while decoding trees and patch lists.
type nesting struct {
	level, limit int
}

func (n *nesting) push() error {
	if n.level >= n.limit {
		return ErrMaxDepthExceeded
	}
	n.level++
	return nil
}

func (n *nesting) pop() { n.level-- }
