// Package format renders evaluation results for output.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Encoder writes v to w.
type Encoder func(w io.Writer, v any) error

// Format names registered by Default.
const (
	JSON        = "json"
	JSONCompact = "json-compact"
	YAML        = "yaml"
)

// Registry maps format names to encoders. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	encoders map[string]Encoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{encoders: make(map[string]Encoder)}
}

// Default returns a registry with the json, json-compact and yaml encoders.
func Default() *Registry {
	r := NewRegistry()
	r.Register(JSON, EncodeJSON)
	r.Register(JSONCompact, EncodeJSONCompact)
	r.Register(YAML, EncodeYAML)
	return r
}

// Register adds enc under name, replacing any encoder already registered.
func (r *Registry) Register(name string, enc Encoder) {
	r.mu.Lock()
	r.encoders[name] = enc
	r.mu.Unlock()
}

// Get returns the encoder registered under name.
func (r *Registry) Get(name string) (Encoder, bool) {
	r.mu.RLock()
	enc, ok := r.encoders[name]
	r.mu.RUnlock()
	return enc, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.encoders))
	for name := range r.encoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode writes v to w with the encoder called name.
func (r *Registry) Encode(name string, w io.Writer, v any) error {
	enc, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("unknown output format %q (available: %s)", name, strings.Join(r.List(), ", "))
	}
	return enc(w, v)
}

// EncodeJSON writes v as indented JSON followed by a newline.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// EncodeJSONCompact writes v as single-line JSON followed by a newline.
func EncodeJSONCompact(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// EncodeYAML writes v as a YAML document.
func EncodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plain(v)); err != nil {
		return err
	}
	return enc.Close()
}

// plain replaces json.Number with int64 or float64 so YAML renders numbers
// unquoted.
func plain(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
