package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vango-dev/liveview/pkg/vdom"
)

// ComponentTag is the element a template uses to place a bound component:
//
//	<live-component name="sidebar"></live-component>
//
// or, through the template function, {{component "sidebar"}}.
const ComponentTag = "live-component"

// Template renders html/template templates and parses their output into a
// tree. Comments and whitespace-only text are dropped; "key" and "data-key"
// attributes become reconciliation keys.
type Template struct {
	set *template.Template
}

// TemplateFuncs returns the functions available to every template.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"component": func(name string) template.HTML {
			return template.HTML(fmt.Sprintf(`<%s name="%s"></%s>`,
				ComponentTag, template.HTMLEscapeString(name), ComponentTag))
		},
	}
}

// NewTemplate parses the templates matching patterns in fsys.
// Each template is addressed by its file name.
func NewTemplate(fsys fs.FS, patterns ...string) (*Template, error) {
	set, err := template.New("").Funcs(TemplateFuncs()).ParseFS(fsys, patterns...)
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}
	return &Template{set: set}, nil
}

// NewTemplateFromStrings parses named template sources.
func NewTemplateFromStrings(sources map[string]string) (*Template, error) {
	set := template.New("").Funcs(TemplateFuncs())
	for name, src := range sources {
		if _, err := set.New(name).Parse(src); err != nil {
			return nil, fmt.Errorf("render: parse template %q: %w", name, err)
		}
	}
	return &Template{set: set}, nil
}

// Render executes the named template with data and parses the result.
func (t *Template) Render(ctx context.Context, name string, data map[string]any) (*vdom.VNode, error) {
	tmpl := t.set.Lookup(name)
	if tmpl == nil {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render: execute %q: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree, err := ParseHTML(&buf)
	if err != nil {
		return nil, fmt.Errorf("render: parse output of %q: %w", name, err)
	}
	return tree, nil
}

// ParseHTML parses an HTML fragment into a tree. A fragment with a single
// top-level element returns that element; anything else is wrapped in a div.
func ParseHTML(r io.Reader) (*vdom.VNode, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(r, body)
	if err != nil {
		return nil, err
	}

	var top []*vdom.VNode
	for _, n := range nodes {
		if v := convert(n); v != nil {
			top = append(top, v)
		}
	}

	if len(top) == 1 && top[0].Kind != vdom.KindText {
		return top[0], nil
	}
	return vdom.El("div", top), nil
}

// convert maps one parsed node to a VNode. It returns nil for nodes that
// have no place in the tree.
func convert(n *html.Node) *vdom.VNode {
	switch n.Type {
	case html.TextNode:
		if strings.IndexFunc(n.Data, func(r rune) bool { return !unicode.IsSpace(r) }) < 0 {
			return nil
		}
		return vdom.Text(n.Data)

	case html.ElementNode:
		if n.Data == ComponentTag {
			return vdom.ComponentRef(componentName(n), nil)
		}

		node := &vdom.VNode{Kind: vdom.KindElement, Tag: n.Data}
		for _, a := range n.Attr {
			switch a.Key {
			case "key":
				node.Key = a.Val
				continue
			case "data-key":
				node.Key = a.Val
			}
			node.Attrs = append(node.Attrs, vdom.Attr{Key: a.Key, Value: a.Val})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if v := convert(c); v != nil {
				node.Children = append(node.Children, v)
			}
		}
		return node
	}

	// Comments, doctypes and anything else are not part of the tree.
	return nil
}

func componentName(n *html.Node) string {
	for _, key := range []string{"name", "id"} {
		for _, a := range n.Attr {
			if a.Key == key {
				return a.Val
			}
		}
	}
	return ""
}
