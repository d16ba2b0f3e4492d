package vdom

import (
	"encoding/binary"
	"encoding/hex"
	"hash"

	"github.com/zeebo/blake3"
)

// Fingerprint returns the hex BLAKE3-256 digest of a canonical encoding of
// the tree. Structurally equal trees have equal fingerprints, independent of
// attribute order, so a client that applies every patch can compare its own
// fingerprint with the one sent by the server.
func Fingerprint(root *VNode) string {
	h := blake3.New()
	var scratch [binary.MaxVarintLen64]byte
	writeNode(h, root, scratch[:])
	return hex.EncodeToString(h.Sum(nil))
}

func writeNode(h hash.Hash, v *VNode, scratch []byte) {
	if v == nil {
		h.Write([]byte{0xFF})
		return
	}
	h.Write([]byte{byte(v.Kind)})
	switch v.Kind {
	case KindText:
		writeString(h, v.Text, scratch)
	case KindComponent:
		writeString(h, v.ComponentID, scratch)
		writeUvarint(h, v.Generation, scratch)
		writeNode(h, v.Tree, scratch)
	default:
		writeString(h, v.Tag, scratch)
		writeString(h, v.Key, scratch)
		attrs := sortedAttrs(v.Attrs)
		writeUvarint(h, uint64(len(attrs)), scratch)
		for _, a := range attrs {
			writeString(h, a.Key, scratch)
			writeString(h, a.Value, scratch)
		}
		writeUvarint(h, uint64(len(v.Children)), scratch)
		for _, c := range v.Children {
			writeNode(h, c, scratch)
		}
	}
}

func writeUvarint(h hash.Hash, n uint64, scratch []byte) {
	h.Write(scratch[:binary.PutUvarint(scratch, n)])
}

func writeString(h hash.Hash, s string, scratch []byte) {
	writeUvarint(h, uint64(len(s)), scratch)
	h.Write([]byte(s))
}
