// Package assets fingerprints static files and resolves their public paths.
//
// Build walks a file system and names every file after a BLAKE3 digest of
// its contents:
//
//	m, _ := assets.Build(os.DirFS("public"))
//	m.Resolve("app.css") // "app.1f3a9c0b.css"
//
// Fingerprinted names change whenever the content does, so Handler can serve
// them with an immutable cache policy while the first page links them through
// a Resolver.
package assets

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// HashLength is the number of hex digits of the digest kept in a name.
const HashLength = 8

// Manifest maps source asset paths to fingerprinted paths.
// It is safe for concurrent use.
type Manifest struct {
	mu      sync.RWMutex
	entries map[string]string
	sources map[string]string // fingerprinted -> source
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		entries: make(map[string]string),
		sources: make(map[string]string),
	}
}

// Load reads a manifest written by WriteFile: {"app.css": "app.1f3a9c0b.css"}.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	m := NewManifest()
	for source, resolved := range entries {
		m.Set(source, resolved)
	}
	return m, nil
}

// Build hashes every regular file in fsys.
func Build(fsys fs.FS) (*Manifest, error) {
	m := NewManifest()
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		sum, err := digest(fsys, name)
		if err != nil {
			return err
		}
		m.Set(name, Fingerprinted(name, sum))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func digest(fsys fs.FS, name string) (string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil))[:HashLength], nil
}

// Fingerprinted inserts hash before the first extension of name's base:
// "css/app.min.css" becomes "css/app.<hash>.min.css".
func Fingerprinted(name, hash string) string {
	dir, base := path.Split(name)
	stem, ext := base, ""
	// A leading dot belongs to the stem.
	if len(base) > 1 {
		if i := strings.IndexByte(base[1:], '.'); i >= 0 {
			stem, ext = base[:i+1], base[i+1:]
		}
	}
	return dir + stem + "." + hash + ext
}

// Resolve returns the fingerprinted path for source, or source itself when
// the manifest has no entry.
func (m *Manifest) Resolve(source string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if resolved, ok := m.entries[source]; ok {
		return resolved
	}
	return source
}

// Source maps a fingerprinted path back to its source path.
func (m *Manifest) Source(resolved string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	source, ok := m.sources[resolved]
	return source, ok
}

// Has reports whether the manifest contains source.
func (m *Manifest) Has(source string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[source]
	return ok
}

// Set adds or replaces an entry.
func (m *Manifest) Set(source, resolved string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[source]; ok {
		delete(m.sources, old)
	}
	m.entries[source] = resolved
	m.sources[resolved] = source
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// All returns a copy of all entries.
func (m *Manifest) All() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		result[k] = v
	}
	return result
}

// WriteFile stores the manifest as indented JSON.
func (m *Manifest) WriteFile(path string) error {
	data, err := json.MarshalIndent(m.All(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
