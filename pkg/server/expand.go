package server

import (
	"context"
	"fmt"

	"github.com/vango-dev/liveview/pkg/component"
	"github.com/vango-dev/liveview/pkg/vdom"
)

// renderTree renders the root view and every component it references.
// It returns the full tree and the rendered subtree of each component by ID.
func (s *Session) renderTree(ctx context.Context) (*vdom.VNode, map[string]*vdom.VNode, error) {
	components := make(map[string]*vdom.VNode)
	tree, err := s.renderView(ctx, s.view, "", components)
	if err != nil {
		return nil, nil, err
	}
	return tree, components, nil
}

// renderView renders v, bound under id, and expands its placeholders.
func (s *Session) renderView(ctx context.Context, v component.View, id string, components map[string]*vdom.VNode) (*vdom.VNode, error) {
	tree, err := s.renderer.Render(ctx, v.Template(), v.RenderContext())
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("template %q rendered no tree", v.Template())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.expand(ctx, tree, s.registry.Scope(id), components)
}

// expand returns a copy of n with every component reference resolved
// against scope and filled with the component's rendered tree. Text nodes
// are shared with the renderer output.
func (s *Session) expand(ctx context.Context, n *vdom.VNode, scope *component.Scope, components map[string]*vdom.VNode) (*vdom.VNode, error) {
	switch n.Kind {
	case vdom.KindComponent:
		id := scope.Resolve(n.ComponentID)
		if _, seen := components[id]; seen {
			return nil, fmt.Errorf("component %q rendered twice", id)
		}
		e, ok := s.registry.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("component %q is not bound", id)
		}
		components[id] = nil

		var (
			sub *vdom.VNode
			err error
		)
		if n.Tree == nil {
			sub, err = s.renderView(ctx, e.View, id, components)
		} else {
			sub, err = s.expand(ctx, n.Tree, s.registry.Scope(id), components)
		}
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", id, err)
		}
		components[id] = sub
		return &vdom.VNode{
			Kind:        vdom.KindComponent,
			ComponentID: id,
			Generation:  e.Generation,
			Tree:        sub,
		}, nil

	case vdom.KindElement:
		if len(n.Children) == 0 {
			return n, nil
		}
		c := *n
		c.Children = make([]*vdom.VNode, 0, len(n.Children))
		for _, child := range n.Children {
			if child == nil {
				continue
			}
			expanded, err := s.expand(ctx, child, scope, components)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, expanded)
		}
		return &c, nil
	}
	return n, nil
}
