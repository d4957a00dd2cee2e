// Package formatter provides a pluggable output rendering system.
// Formatters serialize mapped template output to json, yaml, xml or plain text.
package formatter

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Formatter renders a value to a specific output format.
type Formatter interface {
	// Name returns the formatter name (e.g., "json", "yaml", "xml").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// MimeType returns the content type of the rendered output.
	MimeType() string

	// Format renders v. A string value is an already rendered template and is
	// written unchanged.
	Format(w io.Writer, v any) error

	// FormatError renders an error.
	FormatError(w io.Writer, err error) error
}

// Registry manages registered formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
	defaultFmt string
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		formatters: make(map[string]Formatter),
		defaultFmt: "json",
	}
}

// NewBuiltinRegistry creates a registry holding every built-in formatter.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, f := range builtins() {
		// Names are distinct; Register cannot fail here.
		_ = r.Register(f)
	}
	return r
}

func builtins() []Formatter {
	return []Formatter{
		NewJSONFormatter(),
		NewYAMLFormatter(),
		NewXMLFormatter(),
		NewTextFormatter("handlebars", "text/x-handlebars-template"),
		NewTextFormatter("custom", "text/plain"),
	}
}

// Register adds a formatter to the registry.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Name()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}

	r.formatters[f.Name()] = f
	return nil
}

// Get returns a formatter by name.
func (r *Registry) Get(name string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[name]
	return f, ok
}

// Default returns the default formatter.
func (r *Registry) Default() Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[r.defaultFmt]
	if !ok {
		// Fallback to the first name in order
		names := r.namesLocked()
		if len(names) == 0 {
			return nil
		}
		return r.formatters[names[0]]
	}
	return f
}

// SetDefault sets the default formatter.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[name]; !exists {
		return fmt.Errorf("formatter %q not registered", name)
	}

	r.defaultFmt = name
	return nil
}

// List returns all registered formatter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// writeString writes an already rendered value.
func writeString(w io.Writer, s string) error {
	_, err := io.WriteString(w, s)
	return err
}
