package render

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/vango-dev/liveview/pkg/vdom"
)

// ComponentAttr marks the root element of a rendered component in HTML
// output, so the client can address UpdateComponent patches.
const ComponentAttr = "data-liveview-component"

// HTMLConfig configures the HTML writer.
type HTMLConfig struct {
	// Pretty enables pretty-printed HTML output with indentation.
	// Should only be used in development as it increases output size.
	Pretty bool

	// Indent is the string used for each indentation level in pretty mode.
	// Defaults to two spaces if not specified.
	Indent string
}

// HTMLWriter serializes VNode trees to HTML for the first page load.
type HTMLWriter struct {
	config HTMLConfig
}

// NewHTMLWriter creates a new HTMLWriter with the given configuration.
func NewHTMLWriter(config HTMLConfig) *HTMLWriter {
	if config.Indent == "" {
		config.Indent = "  "
	}
	return &HTMLWriter{config: config}
}

// ToHTML renders a VNode tree to an HTML string.
func ToHTML(node *vdom.VNode) (string, error) {
	return NewHTMLWriter(HTMLConfig{}).RenderToString(node)
}

// RenderToString renders a VNode tree to an HTML string.
func (r *HTMLWriter) RenderToString(node *vdom.VNode) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToWriter(&buf, node); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToWriter streams a VNode tree to the given writer.
func (r *HTMLWriter) RenderToWriter(w io.Writer, node *vdom.VNode) error {
	return r.renderNode(w, node, 0, "")
}

// renderNode dispatches rendering based on node kind.
// component is the ID to stamp on the node if it is a component root.
func (r *HTMLWriter) renderNode(w io.Writer, node *vdom.VNode, depth int, component string) error {
	if node == nil {
		return nil
	}

	switch node.Kind {
	case vdom.KindElement:
		return r.renderElement(w, node, depth, component)
	case vdom.KindText:
		_, err := io.WriteString(w, escapeHTML(node.Text))
		return err
	case vdom.KindComponent:
		if node.Tree == nil {
			return fmt.Errorf("render: component %q has no rendered tree", node.ComponentID)
		}
		return r.renderNode(w, node.Tree, depth, node.ComponentID)
	default:
		return fmt.Errorf("render: unknown node kind: %d", node.Kind)
	}
}

// renderElement renders an HTML element with its attributes and children.
func (r *HTMLWriter) renderElement(w io.Writer, node *vdom.VNode, depth int, component string) error {
	tag := node.Tag

	if r.config.Pretty && depth > 0 {
		r.writeIndent(w, depth)
	}

	if _, err := fmt.Fprintf(w, "<%s", tag); err != nil {
		return err
	}
	for _, a := range node.Attrs {
		if _, err := fmt.Fprintf(w, ` %s="%s"`, a.Key, escapeAttr(a.Value)); err != nil {
			return err
		}
	}
	if component != "" {
		if _, err := fmt.Fprintf(w, ` %s="%s"`, ComponentAttr, escapeAttr(component)); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte{'>'}); err != nil {
		return err
	}

	// Void elements have no children and no closing tag
	if vdom.IsVoidElement(tag) {
		if r.config.Pretty {
			w.Write([]byte{'\n'})
		}
		return nil
	}

	hasBlockChildren := len(node.Children) > 0 && !isInlineElement(tag)
	if r.config.Pretty && hasBlockChildren {
		w.Write([]byte{'\n'})
	}

	for _, child := range node.Children {
		if err := r.renderNode(w, child, depth+1, ""); err != nil {
			return err
		}
	}

	if r.config.Pretty && hasBlockChildren {
		r.writeIndent(w, depth)
	}

	if _, err := fmt.Fprintf(w, "</%s>", tag); err != nil {
		return err
	}
	if r.config.Pretty {
		w.Write([]byte{'\n'})
	}
	return nil
}

// inlineElements don't get newlines in pretty-printed output.
var inlineElements = map[string]bool{
	"a":      true,
	"b":      true,
	"button": true,
	"code":   true,
	"em":     true,
	"i":      true,
	"label":  true,
	"small":  true,
	"span":   true,
	"strong": true,
}

func isInlineElement(tag string) bool {
	return inlineElements[tag]
}

// writeIndent writes indentation for pretty printing.
func (r *HTMLWriter) writeIndent(w io.Writer, depth int) {
	io.WriteString(w, strings.Repeat(r.config.Indent, depth))
}
