package vdom

import (
	"fmt"
	"strings"
)

// PatchOp is the type of patch operation.
type PatchOp uint8

const (
	PatchSetText         PatchOp = 0x01 // Update text content
	PatchSetAttr         PatchOp = 0x02 // Set/update attribute
	PatchRemoveAttr      PatchOp = 0x03 // Remove attribute
	PatchInsertChild     PatchOp = 0x04 // Insert new child at Index
	PatchRemoveChild     PatchOp = 0x05 // Remove child at Index
	PatchMoveChild       PatchOp = 0x06 // Move child From -> To
	PatchReplaceNode     PatchOp = 0x07 // Replace node entirely
	PatchUpdateComponent PatchOp = 0x08 // Nested patches for one component
)

// String returns the string representation of the PatchOp.
func (op PatchOp) String() string {
	switch op {
	case PatchSetText:
		return "SetText"
	case PatchSetAttr:
		return "SetAttr"
	case PatchRemoveAttr:
		return "RemoveAttr"
	case PatchInsertChild:
		return "InsertChild"
	case PatchRemoveChild:
		return "RemoveChild"
	case PatchMoveChild:
		return "MoveChild"
	case PatchReplaceNode:
		return "ReplaceNode"
	case PatchUpdateComponent:
		return "UpdateComponent"
	default:
		return "Unknown"
	}
}

// Path addresses a node by the child indices leading to it from the root.
// The empty path is the root itself.
type Path []int

// Child returns a new path extended by index i.
func (p Path) Child(i int) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = i
	return out
}

// String formats the path as "/0/2/1".
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, i := range p {
		fmt.Fprintf(&b, "/%d", i)
	}
	return b.String()
}

// Patch represents a single tree operation to apply.
//
// Path is resolved against the tree as left by the preceding patch in the
// same list. For UpdateComponent, Path is empty and the nested Patches are
// relative to the component's own subtree root.
type Patch struct {
	Op          PatchOp // Operation type
	Path        Path    // Target node, or parent for child operations
	Key         string  // Attribute key (for SetAttr/RemoveAttr)
	Value       string  // New attribute value or text content
	Node        *VNode  // For InsertChild/ReplaceNode
	Index       int     // Child position for InsertChild/RemoveChild
	From        int     // MoveChild source position
	To          int     // MoveChild destination, after removal from From
	ComponentID string  // For UpdateComponent
	Patches     []Patch // For UpdateComponent
}

// String returns a compact description for logs and test failures.
func (p Patch) String() string {
	switch p.Op {
	case PatchSetText:
		return fmt.Sprintf("SetText(%s, %q)", p.Path, p.Value)
	case PatchSetAttr:
		return fmt.Sprintf("SetAttr(%s, %s=%q)", p.Path, p.Key, p.Value)
	case PatchRemoveAttr:
		return fmt.Sprintf("RemoveAttr(%s, %s)", p.Path, p.Key)
	case PatchInsertChild:
		return fmt.Sprintf("InsertChild(%s, %d)", p.Path, p.Index)
	case PatchRemoveChild:
		return fmt.Sprintf("RemoveChild(%s, %d)", p.Path, p.Index)
	case PatchMoveChild:
		return fmt.Sprintf("MoveChild(%s, %d->%d)", p.Path, p.From, p.To)
	case PatchReplaceNode:
		return fmt.Sprintf("ReplaceNode(%s)", p.Path)
	case PatchUpdateComponent:
		return fmt.Sprintf("UpdateComponent(%s, %d patches)", p.ComponentID, len(p.Patches))
	default:
		return fmt.Sprintf("Patch(%d)", p.Op)
	}
}
