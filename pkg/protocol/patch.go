package protocol

import (
	"fmt"

	"github.com/vango-dev/liveview/pkg/vdom"
)

// EncodePatches encodes a patch list using the provided encoder.
func EncodePatches(e *Encoder, patches []vdom.Patch) {
	e.WriteUvarint(uint64(len(patches)))
	for i := range patches {
		encodePatch(e, &patches[i])
	}
}

// encodePatch encodes a single patch: the op, its path, then the op's fields.
func encodePatch(e *Encoder, p *vdom.Patch) {
	e.WriteUint8(byte(p.Op))
	e.WriteUvarint(uint64(len(p.Path)))
	for _, i := range p.Path {
		e.WriteUvarint(uint64(i))
	}

	switch p.Op {
	case vdom.PatchSetText:
		e.WriteString(p.Value)

	case vdom.PatchSetAttr:
		e.WriteString(p.Key)
		e.WriteString(p.Value)

	case vdom.PatchRemoveAttr:
		e.WriteString(p.Key)

	case vdom.PatchInsertChild:
		e.WriteUvarint(uint64(p.Index))
		EncodeVNode(e, p.Node)

	case vdom.PatchRemoveChild:
		e.WriteUvarint(uint64(p.Index))

	case vdom.PatchMoveChild:
		e.WriteUvarint(uint64(p.From))
		e.WriteUvarint(uint64(p.To))

	case vdom.PatchReplaceNode:
		EncodeVNode(e, p.Node)

	case vdom.PatchUpdateComponent:
		e.WriteString(p.ComponentID)
		EncodePatches(e, p.Patches)
	}
}

// DecodePatches decodes a patch list from the decoder.
// Enforces MaxPatchDepth on nested component updates.
func DecodePatches(d *Decoder) ([]vdom.Patch, error) {
	return decodePatches(d, &nesting{limit: MaxPatchDepth})
}

func decodePatches(d *Decoder, dc *nesting) ([]vdom.Patch, error) {
	if err := dc.push(); err != nil {
		return nil, err
	}
	defer dc.pop()

	count, err := d.ReadCollectionCount()
	if err != nil || count == 0 {
		return nil, err
	}

	patches := make([]vdom.Patch, count)
	for i := range patches {
		if err := decodePatch(d, &patches[i], dc); err != nil {
			return nil, fmt.Errorf("patch %d: %w", i, err)
		}
	}
	return patches, nil
}

func decodePatch(d *Decoder, p *vdom.Patch, dc *nesting) error {
	opByte, err := d.ReadByte()
	if err != nil {
		return err
	}
	p.Op = vdom.PatchOp(opByte)

	depth, err := d.ReadCollectionCount()
	if err != nil {
		return err
	}
	if depth > MaxVNodeDepth {
		return ErrMaxDepthExceeded
	}
	if depth > 0 {
		p.Path = make(vdom.Path, depth)
		for i := range p.Path {
			if p.Path[i], err = readIndex(d); err != nil {
				return err
			}
		}
	}

	switch p.Op {
	case vdom.PatchSetText:
		p.Value, err = d.ReadString()

	case vdom.PatchSetAttr:
		if p.Key, err = d.ReadString(); err != nil {
			return err
		}
		p.Value, err = d.ReadString()

	case vdom.PatchRemoveAttr:
		p.Key, err = d.ReadString()

	case vdom.PatchInsertChild:
		if p.Index, err = readIndex(d); err != nil {
			return err
		}
		p.Node, err = DecodeVNode(d)

	case vdom.PatchRemoveChild:
		p.Index, err = readIndex(d)

	case vdom.PatchMoveChild:
		if p.From, err = readIndex(d); err != nil {
			return err
		}
		p.To, err = readIndex(d)

	case vdom.PatchReplaceNode:
		p.Node, err = DecodeVNode(d)

	case vdom.PatchUpdateComponent:
		if p.ComponentID, err = d.ReadString(); err != nil {
			return err
		}
		p.Patches, err = decodePatches(d, dc)

	default:
		return fmt.Errorf("protocol: unknown patch op 0x%02x", opByte)
	}
	return err
}

// readIndex reads a child index, rejecting values that cannot be a
// position in a decodable child list.
func readIndex(d *Decoder) (int, error) {
	v, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if v > MaxCollectionCount {
		return 0, ErrCollectionTooLarge
	}
	return int(v), nil
}
