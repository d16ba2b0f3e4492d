package render

import (
	"strings"
	"testing"

	"github.com/vango-dev/liveview/pkg/vdom"
)

func TestToHTMLElement(t *testing.T) {
	tree := vdom.Div(vdom.Class("box"), vdom.ID("main"),
		vdom.Span(vdom.Text("hi")),
		vdom.Input(vdom.A("type", "text")),
	)
	got, err := ToHTML(tree)
	if err != nil {
		t.Fatalf("ToHTML() error = %v", err)
	}
	want := `<div class="box" id="main"><span>hi</span><input type="text"></div>`
	if got != want {
		t.Errorf("ToHTML() = %q, want %q", got, want)
	}
}

func TestToHTMLEscapes(t *testing.T) {
	tree := vdom.P(vdom.A("title", `say "hi" & <go>`), vdom.Text("<script>alert(1)</script>"))
	got, err := ToHTML(tree)
	if err != nil {
		t.Fatalf("ToHTML() error = %v", err)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("text not escaped: %q", got)
	}
	if !strings.Contains(got, `title="say &quot;hi&quot; &amp; &lt;go&gt;"`) {
		t.Errorf("attribute not escaped: %q", got)
	}
}

func TestToHTMLComponent(t *testing.T) {
	tree := vdom.Div(
		vdom.ComponentRef("root/sidebar", vdom.Section(vdom.Text("side"))),
	)
	got, err := ToHTML(tree)
	if err != nil {
		t.Fatalf("ToHTML() error = %v", err)
	}
	want := `<div><section data-liveview-component="root/sidebar">side</section></div>`
	if got != want {
		t.Errorf("ToHTML() = %q, want %q", got, want)
	}
}

func TestToHTMLPlaceholderFails(t *testing.T) {
	if _, err := ToHTML(vdom.Div(vdom.ComponentRef("sidebar", nil))); err == nil {
		t.Fatal("expected error for unexpanded component")
	}
}

func TestToHTMLKeyNotRendered(t *testing.T) {
	got, err := ToHTML(vdom.Li(vdom.Key(7), vdom.Text("x")))
	if err != nil {
		t.Fatalf("ToHTML() error = %v", err)
	}
	if got != "<li>x</li>" {
		t.Errorf("ToHTML() = %q", got)
	}
}

func TestPrettyOutput(t *testing.T) {
	w := NewHTMLWriter(HTMLConfig{Pretty: true})
	got, err := w.RenderToString(vdom.Div(vdom.P(vdom.Text("a"))))
	if err != nil {
		t.Fatalf("RenderToString() error = %v", err)
	}
	if got != "<div>\n  <p>\na  </p>\n</div>\n" {
		t.Errorf("RenderToString() = %q", got)
	}
}

func TestRenderPage(t *testing.T) {
	var b strings.Builder
	err := NewHTMLWriter(HTMLConfig{}).RenderPage(&b, PageData{
		Body:        vdom.Div(vdom.Text("count: 0")),
		Title:       "Counter & co",
		SessionID:   "abc123",
		SocketURL:   "/live/ws/counter",
		StyleSheets: []string{"/static/app.css"},
	})
	if err != nil {
		t.Fatalf("RenderPage() error = %v", err)
	}
	out := b.String()
	for _, want := range []string{
		"<!DOCTYPE html>",
		`<html lang="en">`,
		"<title>Counter &amp; co</title>",
		`<link rel="stylesheet" href="/static/app.css">`,
		`<div data-liveview-session="abc123" data-liveview-socket="/live/ws/counter">`,
		"<div>count: 0</div>",
		`<script src="/static/liveview.js" defer></script>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("page missing %q:\n%s", want, out)
		}
	}
}
