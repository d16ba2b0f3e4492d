package vdom

import "sort"

// Diff compares two VNode trees and returns the patches needed to transform prev into next.
//
// For each element the patches are emitted in a fixed order: child removals
// (descending index), child moves, child insertions (ascending index), the
// element's own attribute updates, then the recursive patches of matched
// children at their final positions. Every index is valid against the tree
// produced by applying the preceding patches in order.
func Diff(prev, next *VNode) []Patch {
	var patches []Patch
	diff(prev, next, nil, &patches)
	return patches
}

// diff recursively compares nodes at path and appends patches.
func diff(prev, next *VNode, path Path, patches *[]Patch) {
	// Both nil - nothing to do
	if prev == nil && next == nil {
		return
	}

	// One side missing, or identity changed - replace
	if prev == nil || next == nil || !sameIdentity(prev, next) {
		*patches = append(*patches, Patch{
			Op:   PatchReplaceNode,
			Path: path,
			Node: next,
		})
		return
	}

	switch prev.Kind {
	case KindText:
		if prev.Text != next.Text {
			*patches = append(*patches, Patch{
				Op:    PatchSetText,
				Path:  path,
				Value: next.Text,
			})
		}
	case KindElement:
		diffElement(prev, next, path, patches)
	case KindComponent:
		diffComponent(prev, next, patches)
	}
}

// sameIdentity reports whether next can be reached from prev by in-place updates.
func sameIdentity(prev, next *VNode) bool {
	if prev.Kind != next.Kind {
		return false
	}
	switch prev.Kind {
	case KindElement:
		return prev.Tag == next.Tag && prev.Key == next.Key
	case KindComponent:
		// A new instance under the same id is a different component.
		return prev.ComponentID == next.ComponentID && prev.Generation == next.Generation
	}
	return true
}

// diffElement compares element nodes with the same tag.
func diffElement(prev, next *VNode, path Path, patches *[]Patch) {
	pairs := reconcileChildren(prev.Children, next.Children, path, patches)

	diffAttrs(prev, next, path, patches)

	for _, pair := range pairs {
		diff(prev.Children[pair.prev], next.Children[pair.next], path.Child(pair.next), patches)
	}
}

// diffComponent compares two references to the same component instance.
func diffComponent(prev, next *VNode, patches *[]Patch) {
	inner := Diff(prev.Tree, next.Tree)
	if len(inner) == 0 {
		return
	}
	*patches = append(*patches, Patch{
		Op:          PatchUpdateComponent,
		ComponentID: next.ComponentID,
		Patches:     inner,
	})
}

// diffAttrs compares and patches attributes.
func diffAttrs(prev, next *VNode, path Path, patches *[]Patch) {
	prevAttrs := attrMap(prev.Attrs)
	nextAttrs := attrMap(next.Attrs)

	// Added or changed
	for _, a := range next.Attrs {
		if v, ok := prevAttrs[a.Key]; !ok || v != a.Value {
			*patches = append(*patches, Patch{
				Op:    PatchSetAttr,
				Path:  path,
				Key:   a.Key,
				Value: a.Value,
			})
		}
	}

	// Removed
	for _, a := range prev.Attrs {
		if _, ok := nextAttrs[a.Key]; !ok {
			*patches = append(*patches, Patch{
				Op:   PatchRemoveAttr,
				Path: path,
				Key:  a.Key,
			})
		}
	}
}

// childPair links a child of the previous list to its match in the next list.
type childPair struct {
	prev, next int
}

// reconcileChildren emits the structural patches that turn the prev child
// list into one whose positions line up with next, and returns the matched
// pairs in next order.
//
// Children with a key (component ID or element key) are matched by key.
// A repeated key is only honoured for its first occurrence; later
// occurrences and unkeyed children are matched by their position among the
// unkeyed children of each list.
func reconcileChildren(prev, next []*VNode, path Path, patches *[]Patch) []childPair {
	if len(prev) == 0 && len(next) == 0 {
		return nil
	}

	prevMatch := make([]int, len(prev)) // prev index -> next index, -1 if unmatched
	nextMatch := make([]int, len(next)) // next index -> prev index, -1 if unmatched
	for i := range prevMatch {
		prevMatch[i] = -1
	}
	for i := range nextMatch {
		nextMatch[i] = -1
	}

	prevKeyed, prevUnkeyed := indexChildren(prev)
	nextKeyed, nextUnkeyed := indexChildren(next)

	for key, j := range nextKeyed {
		if i, ok := prevKeyed[key]; ok {
			prevMatch[i] = j
			nextMatch[j] = i
		}
	}
	for u := 0; u < len(prevUnkeyed) && u < len(nextUnkeyed); u++ {
		i, j := prevUnkeyed[u], nextUnkeyed[u]
		prevMatch[i] = j
		nextMatch[j] = i
	}

	// Removals, highest index first so lower indices stay valid.
	for i := len(prev) - 1; i >= 0; i-- {
		if prevMatch[i] == -1 {
			*patches = append(*patches, Patch{
				Op:    PatchRemoveChild,
				Path:  path,
				Index: i,
			})
		}
	}

	// Survivors in their current order, and in the order next wants them.
	current := make([]int, 0, len(prev))
	for i := range prev {
		if prevMatch[i] != -1 {
			current = append(current, i)
		}
	}
	desired := make([]int, 0, len(current))
	for j := range next {
		if nextMatch[j] != -1 {
			desired = append(desired, nextMatch[j])
		}
	}

	emitMoves(current, desired, path, patches)

	// Insertions, lowest index first so each lands at its final position.
	for j, child := range next {
		if nextMatch[j] == -1 {
			*patches = append(*patches, Patch{
				Op:    PatchInsertChild,
				Path:  path,
				Index: j,
				Node:  child,
			})
		}
	}

	pairs := make([]childPair, 0, len(desired))
	for j := range next {
		if nextMatch[j] != -1 {
			pairs = append(pairs, childPair{prev: nextMatch[j], next: j})
		}
	}
	return pairs
}

// indexChildren returns the first index of every key, and the indices of
// children that are matched positionally.
func indexChildren(children []*VNode) (map[string]int, []int) {
	keyed := make(map[string]int)
	var unkeyed []int
	for i, child := range children {
		key := child.ReconcileKey()
		if key == "" {
			unkeyed = append(unkeyed, i)
			continue
		}
		if _, dup := keyed[key]; dup {
			unkeyed = append(unkeyed, i)
			continue
		}
		keyed[key] = i
	}
	return keyed, unkeyed
}

// emitMoves appends MoveChild patches that reorder current into desired.
// Both slices hold the same prev indices. Children on a longest increasing
// run of their target positions stay put; every other child is moved, in
// target order, to just after its target predecessor.
func emitMoves(current, desired []int, path Path, patches *[]Patch) {
	if len(current) < 2 {
		return
	}

	rank := make(map[int]int, len(desired))
	for r, i := range desired {
		rank[i] = r
	}
	seq := make([]int, len(current))
	for k, i := range current {
		seq[k] = rank[i]
	}

	stay := make(map[int]bool, len(current))
	for _, k := range longestIncreasing(seq) {
		stay[current[k]] = true
	}
	if len(stay) == len(current) {
		return
	}

	order := make([]int, len(current))
	copy(order, current)

	for t, i := range desired {
		if stay[i] {
			continue
		}
		from := indexOf(order, i)
		order = append(order[:from], order[from+1:]...)

		to := 0
		if t > 0 {
			to = indexOf(order, desired[t-1]) + 1
		}
		order = append(order, 0)
		copy(order[to+1:], order[to:])
		order[to] = i

		if from != to {
			*patches = append(*patches, Patch{
				Op:   PatchMoveChild,
				Path: path,
				From: from,
				To:   to,
			})
		}
	}
}

// longestIncreasing returns the positions in seq of one longest strictly
// increasing subsequence.
func longestIncreasing(seq []int) []int {
	if len(seq) == 0 {
		return nil
	}

	// tails[l] is the position in seq of the smallest tail of an increasing
	// subsequence of length l+1.
	tails := make([]int, 0, len(seq))
	prevPos := make([]int, len(seq))

	for k, v := range seq {
		l := sort.Search(len(tails), func(n int) bool { return seq[tails[n]] >= v })
		if l > 0 {
			prevPos[k] = tails[l-1]
		} else {
			prevPos[k] = -1
		}
		if l == len(tails) {
			tails = append(tails, k)
		} else {
			tails[l] = k
		}
	}

	out := make([]int, len(tails))
	k := tails[len(tails)-1]
	for n := len(tails) - 1; n >= 0; n-- {
		out[n] = k
		k = prevPos[k]
	}
	return out
}

func indexOf(s []int, v int) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
