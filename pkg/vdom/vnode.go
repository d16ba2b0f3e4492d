package vdom

import "sort"

// VKind is the node type discriminator.
type VKind uint8

const (
	KindElement   VKind = iota // <div>, <button>, etc.
	KindText                   // Plain text node
	KindComponent              // Reference to a registered component subtree
)

// String returns the string representation of the VKind.
func (k VKind) String() string {
	switch k {
	case KindElement:
		return "Element"
	case KindText:
		return "Text"
	case KindComponent:
		return "Component"
	default:
		return "Unknown"
	}
}

// VNode is the virtual DOM node.
//
// A VNode is treated as immutable once it has been handed to Diff or to a
// session as a rendered tree. Appliers that need to mutate work on a Clone.
type VNode struct {
	Kind     VKind    // Node type
	Tag      string   // Element tag name (e.g., "div")
	Attrs    []Attr   // Element attributes, in declaration order
	Children []*VNode // Child nodes
	Key      string   // Reconciliation key for elements
	Text     string   // For KindText

	ComponentID string // For KindComponent
	Generation  uint64 // Registry instance generation of the component
	Tree        *VNode // Rendered subtree of the component, nil for a placeholder
}

// Attr represents a single attribute.
type Attr struct {
	Key   string
	Value string
}

// IsEmpty returns true if this is an empty/nil attribute.
func (a Attr) IsEmpty() bool {
	return a.Key == ""
}

// A creates an attribute.
func A(key, value string) Attr {
	return Attr{Key: key, Value: value}
}

// Attr returns the value of the named attribute.
func (v *VNode) Attr(key string) (string, bool) {
	if v == nil {
		return "", false
	}
	for _, a := range v.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// IsPlaceholder reports whether v is a component reference whose subtree has
// not been rendered yet.
func (v *VNode) IsPlaceholder() bool {
	return v != nil && v.Kind == KindComponent && v.Tree == nil
}

// ReconcileKey returns the key used to match v against its siblings.
// Component references are keyed by component ID; elements by Key.
func (v *VNode) ReconcileKey() string {
	if v == nil {
		return ""
	}
	if v.Kind == KindComponent {
		return v.ComponentID
	}
	return v.Key
}

// Clone returns a deep copy of v.
func (v *VNode) Clone() *VNode {
	if v == nil {
		return nil
	}
	c := *v
	if v.Attrs != nil {
		c.Attrs = make([]Attr, len(v.Attrs))
		copy(c.Attrs, v.Attrs)
	}
	if v.Children != nil {
		c.Children = make([]*VNode, len(v.Children))
		for i, child := range v.Children {
			c.Children[i] = child.Clone()
		}
	}
	c.Tree = v.Tree.Clone()
	return &c
}

// Equal reports whether a and b are structurally equal.
// Attribute order is ignored; child order is not.
func Equal(a, b *VNode) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindText:
		return a.Text == b.Text
	case KindComponent:
		return a.ComponentID == b.ComponentID &&
			a.Generation == b.Generation &&
			Equal(a.Tree, b.Tree)
	}

	if a.Tag != b.Tag || a.Key != b.Key {
		return false
	}
	if !attrsEqual(a.Attrs, b.Attrs) {
		return false
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

func attrsEqual(a, b []Attr) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	am := attrMap(a)
	for _, attr := range b {
		v, ok := am[attr.Key]
		if !ok || v != attr.Value {
			return false
		}
	}
	return len(am) == len(attrMap(b))
}

func attrMap(attrs []Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value
	}
	return m
}

// sortedAttrs returns a copy of attrs ordered by key.
func sortedAttrs(attrs []Attr) []Attr {
	out := make([]Attr, len(attrs))
	copy(out, attrs)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
