package assets

import (
	"io/fs"
	"net/http"
	"strings"
)

// Resolver maps a source asset path to the URL a page links to.
type Resolver interface {
	// Asset resolves source to its full URL path, including the prefix
	// and any fingerprint.
	Asset(source string) string
}

type manifestResolver struct {
	manifest *Manifest
	prefix   string
}

// NewResolver creates a Resolver that prefixes fingerprinted names:
//
//	r := assets.NewResolver(m, "/static/")
//	r.Asset("app.css") // "/static/app.1f3a9c0b.css"
func NewResolver(m *Manifest, prefix string) Resolver {
	return &manifestResolver{manifest: m, prefix: prefix}
}

func (r *manifestResolver) Asset(source string) string {
	return r.prefix + r.manifest.Resolve(source)
}

type passthrough struct {
	prefix string
}

// NewPassthroughResolver creates a resolver that only applies prefix.
func NewPassthroughResolver(prefix string) Resolver {
	return &passthrough{prefix: prefix}
}

func (p *passthrough) Asset(source string) string {
	return p.prefix + source
}

// Rewrite resolves every link in links that starts with prefix and leaves
// the others untouched.
func Rewrite(r Resolver, prefix string, links []string) []string {
	out := make([]string, len(links))
	for i, link := range links {
		if source, ok := strings.CutPrefix(link, prefix); ok {
			out[i] = r.Asset(source)
			continue
		}
		out[i] = link
	}
	return out
}

// Handler serves fsys. Fingerprinted names from m are served with a
// year-long immutable cache policy; source names are revalidated on every
// request.
func Handler(fsys fs.FS, m *Manifest) http.Handler {
	files := http.FileServerFS(fsys)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if source, ok := m.Source(name); ok {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			r2 := r.Clone(r.Context())
			r2.URL.Path = "/" + source
			r2.URL.RawPath = ""
			files.ServeHTTP(w, r2)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})
}
