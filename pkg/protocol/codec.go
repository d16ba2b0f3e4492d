package protocol

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes message payloads. Framing and compression are applied
// around the payload by a Framer.
type Codec interface {
	// Name identifies the codec in configuration.
	Name() string

	// Marshal encodes msg's payload.
	Marshal(msg *Message) ([]byte, error)

	// Unmarshal decodes a payload carried by a frame of type t.
	Unmarshal(t FrameType, payload []byte) (*Message, error)
}

// Codecs available by name.
var (
	Binary Codec = binaryCodec{}
	CBOR   Codec = cborCodec{}
)

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "binary":
		return Binary, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("protocol: unknown codec %q", name)
	}
}

// binaryCodec is the compact varint/length-prefixed encoding.
type binaryCodec struct{}

func (binaryCodec) Name() string { return "binary" }

func (binaryCodec) Marshal(msg *Message) ([]byte, error) {
	e := NewEncoder()

	switch msg.Type {
	case FrameMount:
		e.WriteString(msg.SessionID)
		e.WriteString(msg.Fingerprint)
		EncodeVNode(e, msg.Tree)

	case FramePatches:
		e.WriteUvarint(msg.Seq)
		e.WriteString(msg.Fingerprint)
		EncodePatches(e, msg.Patches)

	case FrameEvent:
		e.WriteUvarint(msg.Seq)
		e.WriteString(msg.Target)
		e.WriteString(msg.Handler)
		e.WriteStringMap(msg.Payload)

	case FrameError:
		e.WriteUvarint(msg.Seq)
		e.WriteString(msg.Code)
		e.WriteString(msg.Message)

	case FramePing, FramePong:
		e.WriteUvarint(msg.Timestamp)

	case FrameClose:
		e.WriteString(msg.Reason)

	default:
		return nil, ErrInvalidFrameType
	}

	return e.Bytes(), nil
}

func (binaryCodec) Unmarshal(t FrameType, payload []byte) (*Message, error) {
	d := NewDecoder(payload)
	msg := &Message{Type: t}
	var err error

	switch t {
	case FrameMount:
		if msg.SessionID, err = d.ReadString(); err != nil {
			return nil, err
		}
		if msg.Fingerprint, err = d.ReadString(); err != nil {
			return nil, err
		}
		if msg.Tree, err = DecodeVNode(d); err != nil {
			return nil, err
		}

	case FramePatches:
		if msg.Seq, err = d.ReadUvarint(); err != nil {
			return nil, err
		}
		if msg.Fingerprint, err = d.ReadString(); err != nil {
			return nil, err
		}
		if msg.Patches, err = DecodePatches(d); err != nil {
			return nil, err
		}

	case FrameEvent:
		if msg.Seq, err = d.ReadUvarint(); err != nil {
			return nil, err
		}
		if msg.Target, err = d.ReadString(); err != nil {
			return nil, err
		}
		if msg.Handler, err = d.ReadString(); err != nil {
			return nil, err
		}
		if msg.Payload, err = d.ReadStringMap(); err != nil {
			return nil, err
		}

	case FrameError:
		if msg.Seq, err = d.ReadUvarint(); err != nil {
			return nil, err
		}
		if msg.Code, err = d.ReadString(); err != nil {
			return nil, err
		}
		if msg.Message, err = d.ReadString(); err != nil {
			return nil, err
		}

	case FramePing, FramePong:
		if msg.Timestamp, err = d.ReadUvarint(); err != nil {
			return nil, err
		}

	case FrameClose:
		if msg.Reason, err = d.ReadString(); err != nil {
			return nil, err
		}

	default:
		return nil, ErrInvalidFrameType
	}

	if !d.EOF() {
		return nil, ErrTrailingData
	}
	return msg, nil
}

// cborCodec encodes messages as CBOR using Core Deterministic Encoding:
// sorted map keys and smallest integer encoding, so the same message always
// produces identical bytes.
type cborCodec struct{}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels:  MaxVNodeDepth * 2,
		MaxArrayElements: MaxCollectionCount,
		MaxMapPairs:      MaxCollectionCount,
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

func (cborCodec) Name() string { return "cbor" }

func (cborCodec) Marshal(msg *Message) ([]byte, error) {
	if !msg.Type.Valid() {
		return nil, ErrInvalidFrameType
	}
	return cborEnc.Marshal(msg)
}

func (cborCodec) Unmarshal(t FrameType, payload []byte) (*Message, error) {
	var msg Message
	if err := cborDec.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	if msg.Type != t {
		return nil, fmt.Errorf("protocol: frame type %s carries %s message", t, msg.Type)
	}
	return &msg, nil
}
