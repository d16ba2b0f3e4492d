package vdom

import "fmt"

// Text creates a text node.
func Text(content string) *VNode {
	return &VNode{
		Kind: KindText,
		Text: content,
	}
}

// Textf creates a formatted text node.
func Textf(format string, args ...any) *VNode {
	return Text(fmt.Sprintf(format, args...))
}

// ComponentRef creates a reference to a registered component.
// A nil tree creates a placeholder that the session fills in when it
// expands the owner's render output.
func ComponentRef(id string, tree *VNode) *VNode {
	return &VNode{
		Kind:        KindComponent,
		ComponentID: id,
		Tree:        tree,
	}
}

// Keyed returns node with its reconciliation key set.
// Component references are always keyed by their ID and are returned as is.
func Keyed(key string, node *VNode) *VNode {
	if node == nil || node.Kind != KindElement {
		return node
	}
	c := *node
	c.Key = key
	return &c
}

// Key sets the reconciliation key on an element.
func Key(key any) Attr {
	return Attr{Key: "key", Value: fmt.Sprint(key)}
}

// ID sets the id attribute.
func ID(id string) Attr { return A("id", id) }

// Class sets the class attribute.
func Class(class string) Attr { return A("class", class) }

// Data sets a data-* attribute.
func Data(key, value string) Attr { return A("data-"+key, value) }

// Range maps items to nodes.
func Range[T any](items []T, fn func(item T, index int) *VNode) []*VNode {
	result := make([]*VNode, 0, len(items))
	for i, item := range items {
		if node := fn(item, i); node != nil {
			result = append(result, node)
		}
	}
	return result
}

// If returns node if condition is true, nil otherwise.
func If(condition bool, node *VNode) *VNode {
	if condition {
		return node
	}
	return nil
}
