package render

import (
	"fmt"
	"io"

	"github.com/vango-dev/liveview/pkg/vdom"
)

// SessionAttr carries the session ID on the page root for the client to
// open its socket with.
const SessionAttr = "data-liveview-session"

// PageData contains all data needed to render the first page of a view.
type PageData struct {
	// Body is the mounted view's tree.
	Body *vdom.VNode

	// Title is the page title
	Title string

	// SessionID is the session the client attaches to over the socket.
	SessionID string

	// SocketURL is the WebSocket endpoint for the session.
	SocketURL string

	// ClientScript is the path to the client JavaScript.
	// Defaults to "/static/liveview.js" if not specified.
	ClientScript string

	// StyleSheets contains paths to external stylesheets
	StyleSheets []string

	// Lang is the language attribute for the html element
	// Defaults to "en" if not specified
	Lang string
}

// RenderPage renders a complete HTML document to the given writer.
func (r *HTMLWriter) RenderPage(w io.Writer, page PageData) error {
	lang := page.Lang
	if lang == "" {
		lang = "en"
	}
	script := page.ClientScript
	if script == "" {
		script = "/static/liveview.js"
	}

	if _, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html lang=\"%s\">\n<head>\n", escapeAttr(lang)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, `  <meta charset="utf-8">`+"\n"+
		`  <meta name="viewport" content="width=device-width, initial-scale=1">`+"\n"); err != nil {
		return err
	}
	if page.Title != "" {
		if _, err := fmt.Fprintf(w, "  <title>%s</title>\n", escapeHTML(page.Title)); err != nil {
			return err
		}
	}
	for _, href := range page.StyleSheets {
		if _, err := fmt.Fprintf(w, `  <link rel="stylesheet" href="%s">`+"\n", escapeAttr(href)); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "</head>\n<body>\n"); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, `<div %s="%s" data-liveview-socket="%s">`,
		SessionAttr, escapeAttr(page.SessionID), escapeAttr(page.SocketURL)); err != nil {
		return err
	}
	if err := r.RenderToWriter(w, page.Body); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "</div>\n"); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, `<script src="%s" defer></script>`+"\n</body>\n</html>\n", escapeAttr(script)); err != nil {
		return err
	}
	return nil
}
