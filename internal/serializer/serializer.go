package serializer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/svcreg-labs/svcreg/internal/service"
)

// Serializer converts a definition to and from its on-disk byte form.
type Serializer interface {
	// Encode renders the definition for storage.
	Encode(def *service.Definition) ([]byte, error)
	// Decode parses stored bytes back into a definition.
	Decode(data []byte) (*service.Definition, error)
	// Extensions lists the file extensions (without dot) this serializer owns.
	Extensions() []string
}

// Registry maps file extensions to serializers.
type Registry struct {
	byExt map[string]Serializer
}

// NewRegistry builds a registry from the given serializers. Later
// serializers win when two claim the same extension.
func NewRegistry(serializers ...Serializer) *Registry {
	r := &Registry{byExt: make(map[string]Serializer)}
	for _, s := range serializers {
		for _, ext := range s.Extensions() {
			r.byExt[normalizeExt(ext)] = s
		}
	}
	return r
}

// Default returns a registry holding the JSON and YAML serializers.
func Default() *Registry {
	return NewRegistry(JSON{}, YAML{})
}

// Lookup returns the serializer for an extension (with or without dot).
func (r *Registry) Lookup(ext string) (Serializer, bool) {
	s, ok := r.byExt[normalizeExt(ext)]
	return s, ok
}

// ForPath returns the serializer for a file path's extension.
func (r *Registry) ForPath(path string) (Serializer, error) {
	ext := normalizeExt(pathExt(path))
	s, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("no serializer registered for extension %q", ext)
	}
	return s, nil
}

// Extensions returns the recognized extension set, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Recognizes reports whether the path's extension has a serializer.
// Anything else, including temp files from in-flight atomic writes,
// is invisible to the registry.
func (r *Registry) Recognizes(path string) bool {
	_, ok := r.byExt[normalizeExt(pathExt(path))]
	return ok
}

// Restrict returns a copy limited to the given extensions (the configured
// allow-list). Unknown extensions in the list are ignored.
func (r *Registry) Restrict(extensions []string) *Registry {
	out := &Registry{byExt: make(map[string]Serializer)}
	for _, ext := range extensions {
		key := normalizeExt(ext)
		if s, ok := r.byExt[key]; ok {
			out.byExt[key] = s
		}
	}
	return out
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func pathExt(path string) string {
	return filepath.Ext(filepath.Base(path))
}
