package vdom

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath is returned when a patch addresses a node that does not exist.
	ErrInvalidPath = errors.New("vdom: invalid patch path")

	// ErrInvalidPatch is returned for patches that cannot apply to their target.
	ErrInvalidPatch = errors.New("vdom: invalid patch")
)

// Apply applies patches in order to a copy of root and returns the result.
// root itself is never modified.
//
// Apply is the reference applier: a client that follows the same rules
// reproduces the server's tree exactly.
func Apply(root *VNode, patches []Patch) (*VNode, error) {
	tree := root.Clone()
	for i, p := range patches {
		var err error
		tree, err = applyPatch(tree, p)
		if err != nil {
			return nil, fmt.Errorf("patch %d %s: %w", i, p, err)
		}
	}
	return tree, nil
}

func applyPatch(root *VNode, p Patch) (*VNode, error) {
	if p.Op == PatchUpdateComponent {
		comp := findComponent(root, p.ComponentID)
		if comp == nil {
			return nil, fmt.Errorf("%w: component %q not found", ErrInvalidPath, p.ComponentID)
		}
		tree := comp.Tree
		for _, inner := range p.Patches {
			var err error
			tree, err = applyPatch(tree, inner)
			if err != nil {
				return nil, err
			}
		}
		comp.Tree = tree
		return root, nil
	}

	if p.Op == PatchReplaceNode && len(p.Path) == 0 {
		return p.Node.Clone(), nil
	}

	target, err := resolve(root, p.Path)
	if err != nil {
		return nil, err
	}

	switch p.Op {
	case PatchSetText:
		if target.Kind != KindText {
			return nil, fmt.Errorf("%w: SetText on %s", ErrInvalidPatch, target.Kind)
		}
		target.Text = p.Value

	case PatchSetAttr:
		if target.Kind != KindElement {
			return nil, fmt.Errorf("%w: SetAttr on %s", ErrInvalidPatch, target.Kind)
		}
		target.setAttr(Attr{Key: p.Key, Value: p.Value})

	case PatchRemoveAttr:
		if target.Kind != KindElement {
			return nil, fmt.Errorf("%w: RemoveAttr on %s", ErrInvalidPatch, target.Kind)
		}
		for i, a := range target.Attrs {
			if a.Key == p.Key {
				target.Attrs = append(target.Attrs[:i], target.Attrs[i+1:]...)
				break
			}
		}

	case PatchInsertChild:
		if p.Index < 0 || p.Index > len(target.Children) {
			return nil, fmt.Errorf("%w: insert index %d of %d", ErrInvalidPath, p.Index, len(target.Children))
		}
		target.Children = append(target.Children, nil)
		copy(target.Children[p.Index+1:], target.Children[p.Index:])
		target.Children[p.Index] = p.Node.Clone()

	case PatchRemoveChild:
		if p.Index < 0 || p.Index >= len(target.Children) {
			return nil, fmt.Errorf("%w: remove index %d of %d", ErrInvalidPath, p.Index, len(target.Children))
		}
		target.Children = append(target.Children[:p.Index], target.Children[p.Index+1:]...)

	case PatchMoveChild:
		n := len(target.Children)
		if p.From < 0 || p.From >= n || p.To < 0 || p.To >= n {
			return nil, fmt.Errorf("%w: move %d->%d of %d", ErrInvalidPath, p.From, p.To, n)
		}
		child := target.Children[p.From]
		target.Children = append(target.Children[:p.From], target.Children[p.From+1:]...)
		target.Children = append(target.Children, nil)
		copy(target.Children[p.To+1:], target.Children[p.To:])
		target.Children[p.To] = child

	case PatchReplaceNode:
		parent, err := resolve(root, p.Path[:len(p.Path)-1])
		if err != nil {
			return nil, err
		}
		parent.Children[p.Path[len(p.Path)-1]] = p.Node.Clone()

	default:
		return nil, fmt.Errorf("%w: unknown op %d", ErrInvalidPatch, p.Op)
	}

	return root, nil
}

// resolve walks path from root through element children.
func resolve(root *VNode, path Path) (*VNode, error) {
	node := root
	if node == nil {
		return nil, fmt.Errorf("%w: %s on empty tree", ErrInvalidPath, path)
	}
	for depth, i := range path {
		if node.Kind != KindElement || i < 0 || i >= len(node.Children) {
			return nil, fmt.Errorf("%w: %s at depth %d", ErrInvalidPath, path, depth)
		}
		node = node.Children[i]
	}
	return node, nil
}

// findComponent returns the first component reference with the given ID,
// searching element children and component subtrees depth first.
func findComponent(node *VNode, id string) *VNode {
	if node == nil {
		return nil
	}
	if node.Kind == KindComponent {
		if node.ComponentID == id {
			return node
		}
		return findComponent(node.Tree, id)
	}
	for _, child := range node.Children {
		if found := findComponent(child, id); found != nil {
			return found
		}
	}
	return nil
}
