// Package demo holds the example views served by the liveview command.
package demo

import (
	"embed"
	"io/fs"

	"github.com/vango-dev/liveview/pkg/component"
	"github.com/vango-dev/liveview/pkg/render"
	"github.com/vango-dev/liveview/pkg/server"
)

//go:embed templates/*.html
var templates embed.FS

//go:embed static
var static embed.FS

// StyleSheet is the demo stylesheet's path under the static mount.
const StyleSheet = "demo.css"

// Renderer parses the embedded templates.
func Renderer() (*render.Template, error) {
	return render.NewTemplate(templates, "templates/*.html")
}

// Static returns the demo's static files.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Views maps view names to their factories.
func Views() map[string]server.ViewFactory {
	return map[string]server.ViewFactory{
		"counter": func() component.View { return NewCounter() },
	}
}

// Register adds every demo view to srv.
func Register(srv *server.Server) {
	for name, factory := range Views() {
		srv.Register(name, factory)
	}
}
