package vdom

// voidElements are elements that cannot have children.
var voidElements = map[string]bool{
	"area":   true,
	"base":   true,
	"br":     true,
	"col":    true,
	"embed":  true,
	"hr":     true,
	"img":    true,
	"input":  true,
	"link":   true,
	"meta":   true,
	"param":  true,
	"source": true,
	"track":  true,
	"wbr":    true,
}

// IsVoidElement returns true if the tag is a void element.
func IsVoidElement(tag string) bool {
	return voidElements[tag]
}

// El creates an element node.
// Arguments can be: nil, Attr, []Attr, *VNode, []*VNode, string.
// A "key" attribute becomes the node's reconciliation key rather than an
// attribute. Repeating an attribute keeps its first position and last value.
func El(tag string, args ...any) *VNode {
	node := &VNode{
		Kind: KindElement,
		Tag:  tag,
	}

	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
			// Ignore nil (allows conditional attributes and children)
			continue
		case Attr:
			node.setAttr(v)
		case []Attr:
			for _, a := range v {
				node.setAttr(a)
			}
		case *VNode:
			if v != nil {
				node.Children = append(node.Children, v)
			}
		case []*VNode:
			for _, c := range v {
				if c != nil {
					node.Children = append(node.Children, c)
				}
			}
		case string:
			node.Children = append(node.Children, Text(v))
		}
	}

	return node
}

func (v *VNode) setAttr(a Attr) {
	if a.IsEmpty() {
		return
	}
	if a.Key == "key" {
		v.Key = a.Value
		return
	}
	for i := range v.Attrs {
		if v.Attrs[i].Key == a.Key {
			v.Attrs[i].Value = a.Value
			return
		}
	}
	v.Attrs = append(v.Attrs, a)
}

// Document structure
func Div(args ...any) *VNode     { return El("div", args...) }
func Span(args ...any) *VNode    { return El("span", args...) }
func P(args ...any) *VNode       { return El("p", args...) }
func H1(args ...any) *VNode      { return El("h1", args...) }
func H2(args ...any) *VNode      { return El("h2", args...) }
func Section(args ...any) *VNode { return El("section", args...) }
func Main(args ...any) *VNode    { return El("main", args...) }

// Lists
func Ul(args ...any) *VNode { return El("ul", args...) }
func Ol(args ...any) *VNode { return El("ol", args...) }
func Li(args ...any) *VNode { return El("li", args...) }

// Forms
func Form(args ...any) *VNode   { return El("form", args...) }
func Input(args ...any) *VNode  { return El("input", args...) }
func Label(args ...any) *VNode  { return El("label", args...) }
func Button(args ...any) *VNode { return El("button", args...) }
