package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/vango-dev/liveview/pkg/vdom"
)

// ErrTemplateNotFound is returned when a renderer has no template by that name.
var ErrTemplateNotFound = errors.New("render: template not found")

// Renderer turns a template and its context into a tree.
//
// Renderers must not keep or mutate data after Render returns, and must be
// safe for concurrent use: every session calls the same Renderer.
// Component references in the output are placeholders (a ComponentRef with
// no tree) naming a component relative to the view being rendered.
type Renderer interface {
	Render(ctx context.Context, template string, data map[string]any) (*vdom.VNode, error)
}

// Func adapts a function to the Renderer interface.
type Func func(ctx context.Context, template string, data map[string]any) (*vdom.VNode, error)

// Render calls f.
func (f Func) Render(ctx context.Context, template string, data map[string]any) (*vdom.VNode, error) {
	return f(ctx, template, data)
}

// Funcs is a Renderer backed by Go functions keyed by template name.
type Funcs map[string]func(data map[string]any) *vdom.VNode

// Render calls the function registered for template.
func (f Funcs) Render(_ context.Context, template string, data map[string]any) (*vdom.VNode, error) {
	fn, ok := f[template]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, template)
	}
	return fn(data), nil
}

// Chain tries each renderer in order, moving on only when a renderer
// reports ErrTemplateNotFound.
type Chain []Renderer

// Render implements Renderer.
func (c Chain) Render(ctx context.Context, template string, data map[string]any) (*vdom.VNode, error) {
	for _, r := range c {
		tree, err := r.Render(ctx, template, data)
		if errors.Is(err, ErrTemplateNotFound) {
			continue
		}
		return tree, err
	}
	return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, template)
}
