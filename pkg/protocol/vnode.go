package protocol

import (
	"fmt"

	"github.com/vango-dev/liveview/pkg/vdom"
)

// nullNode marks an absent node on the wire.
const nullNode = 0xFF

// EncodeVNode encodes a tree using the provided encoder.
//
// Elements carry tag, key, attributes in order, and children. Components
// carry their ID, generation and rendered tree; placeholders have no place
// on the wire and encode their tree as null.
func EncodeVNode(e *Encoder, node *vdom.VNode) {
	if node == nil {
		e.WriteUint8(nullNode)
		return
	}

	e.WriteUint8(byte(node.Kind))

	switch node.Kind {
	case vdom.KindElement:
		e.WriteString(node.Tag)
		e.WriteString(node.Key)

		e.WriteUvarint(uint64(len(node.Attrs)))
		for _, a := range node.Attrs {
			e.WriteString(a.Key)
			e.WriteString(a.Value)
		}

		e.WriteUvarint(uint64(len(node.Children)))
		for _, child := range node.Children {
			EncodeVNode(e, child)
		}

	case vdom.KindText:
		e.WriteString(node.Text)

	case vdom.KindComponent:
		e.WriteString(node.ComponentID)
		e.WriteUvarint(node.Generation)
		EncodeVNode(e, node.Tree)
	}
}

// DecodeVNode decodes a tree from the decoder.
// Enforces MaxVNodeDepth.
func DecodeVNode(d *Decoder) (*vdom.VNode, error) {
	return decodeVNode(d, &nesting{limit: MaxVNodeDepth})
}

func decodeVNode(d *Decoder, dc *nesting) (*vdom.VNode, error) {
	if err := dc.push(); err != nil {
		return nil, err
	}
	defer dc.pop()

	kindByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	if kindByte == nullNode {
		return nil, nil
	}

	node := &vdom.VNode{Kind: vdom.VKind(kindByte)}

	switch node.Kind {
	case vdom.KindElement:
		if node.Tag, err = d.ReadString(); err != nil {
			return nil, err
		}
		if node.Key, err = d.ReadString(); err != nil {
			return nil, err
		}

		attrCount, err := d.ReadCollectionCount()
		if err != nil {
			return nil, err
		}
		if attrCount > 0 {
			node.Attrs = make([]vdom.Attr, attrCount)
			for i := range node.Attrs {
				if node.Attrs[i].Key, err = d.ReadString(); err != nil {
					return nil, err
				}
				if node.Attrs[i].Value, err = d.ReadString(); err != nil {
					return nil, err
				}
			}
		}

		childCount, err := d.ReadCollectionCount()
		if err != nil {
			return nil, err
		}
		if childCount > 0 {
			node.Children = make([]*vdom.VNode, childCount)
			for i := range node.Children {
				child, err := decodeVNode(d, dc)
				if err != nil {
					return nil, err
				}
				if child == nil {
					return nil, fmt.Errorf("protocol: null child at index %d", i)
				}
				node.Children[i] = child
			}
		}

	case vdom.KindText:
		if node.Text, err = d.ReadString(); err != nil {
			return nil, err
		}

	case vdom.KindComponent:
		if node.ComponentID, err = d.ReadString(); err != nil {
			return nil, err
		}
		if node.Generation, err = d.ReadUvarint(); err != nil {
			return nil, err
		}
		if node.Tree, err = decodeVNode(d, dc); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("protocol: unknown node kind 0x%02x", kindByte)
	}

	return node, nil
}
