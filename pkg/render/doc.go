// Package render connects liveview sessions to template engines and to HTML.
//
// # Renderer
//
// A Renderer turns a template name plus a context mapping into a vdom tree.
// Sessions call it after every handler; it must be free of side effects.
// Three implementations are provided:
//
//   - Funcs maps template names to Go functions building trees directly.
//   - Template executes html/template templates and parses their output
//     with golang.org/x/net/html.
//   - Chain tries several renderers in order.
//
// Templates place bound components with a placeholder element:
//
//	<div class="layout">
//	    {{component "sidebar"}}
//	    <main>{{.Content}}</main>
//	</div>
//
// # HTML output
//
// HTMLWriter serializes a tree back to HTML for the first page load.
// RenderPage wraps it in a document that carries the session ID.
package render
