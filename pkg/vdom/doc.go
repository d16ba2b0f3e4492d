// Package vdom provides the virtual tree and diff engine for liveview.
//
// The virtual tree is an in-memory representation of a view's markup. The
// server keeps the last tree it sent to each client, renders a new one after
// every event, and sends only the patches produced by Diff.
//
// # Core Types
//
// VNode is the fundamental building block representing elements, text and
// component references. Attr holds one attribute. Trees are values: once a
// tree has been rendered it is not mutated, and Apply works on a copy.
//
// # Element API
//
// Elements are created using variadic factory functions:
//
//	Div(Class("card"), ID("main"),
//	    H1("Title"),
//	    Ul(Range(items, func(it Item, _ int) *VNode {
//	        return Li(Key(it.ID), it.Name)
//	    })),
//	)
//
// # Diffing
//
// Diff compares two trees and returns an ordered slice of Patch operations
// addressed by Path. Children are matched by key (component ID or element
// key) and otherwise by position. Reordered keyed children produce MoveChild
// patches; a longest run already in order is never moved.
//
// # Verification
//
// Apply is a reference patch applier, and Fingerprint hashes a tree so the
// two ends of a connection can detect divergence.
package vdom
