package injector

import (
	"time"

	"github.com/artpar/docforge/core/schema"
	"github.com/artpar/docforge/core/template"
)

// DefaultMaxAge is the age after which a staged context is reported expired.
const DefaultMaxAge = time.Hour

// SchemaContext is a staged schema.
type SchemaContext struct {
	Name       string
	Definition *schema.Definition

	// Dir is the directory of the schema file, used to resolve relative
	// x-template references. Empty for schemas staged from memory.
	Dir string

	// Resolved is filled on activation.
	Resolved  *schema.Resolved
	CreatedAt time.Time
}

// IsExpired reports whether the context is older than maxAge. A non-positive
// maxAge means DefaultMaxAge. Expiry is advisory.
func (c SchemaContext) IsExpired(now time.Time, maxAge time.Duration) bool {
	return expired(c.CreatedAt, now, maxAge)
}

// TemplateContext is a staged template.
type TemplateContext struct {
	Name      string
	Template  template.TemplateFormat
	CreatedAt time.Time
}

// IsExpired reports whether the context is older than maxAge.
func (c TemplateContext) IsExpired(now time.Time, maxAge time.Duration) bool {
	return expired(c.CreatedAt, now, maxAge)
}

// PromptContext holds the extraction and mapping prompts of a bundle.
type PromptContext struct {
	Name       string
	Extraction string
	Mapping    string
	CreatedAt  time.Time
}

// IsExpired reports whether the context is older than maxAge.
func (c PromptContext) IsExpired(now time.Time, maxAge time.Duration) bool {
	return expired(c.CreatedAt, now, maxAge)
}

func expired(created, now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return now.Sub(created) > maxAge
}

// ActiveSchema is the injector's current state. The variants are None, Loading,
// Loaded and Failed; the set is closed.
type ActiveSchema interface {
	// Kind returns "None", "Loading", "Loaded" or "Failed".
	Kind() string
	// BundleName returns the bundle the state refers to, empty for None.
	BundleName() string

	activeSchema()
}

// None means nothing is active.
type None struct{}

// Loading means an activation is in progress.
type Loading struct {
	Name      string
	StartedAt time.Time
}

// Loaded is a successfully activated bundle.
type Loaded struct {
	Name        string
	Schema      SchemaContext
	Template    TemplateContext
	Prompts     PromptContext
	ActivatedAt time.Time
}

// Failed records the last failed activation.
type Failed struct {
	Name     string
	Err      error
	FailedAt time.Time
}

func (None) Kind() string    { return "None" }
func (Loading) Kind() string { return "Loading" }
func (Loaded) Kind() string  { return "Loaded" }
func (Failed) Kind() string  { return "Failed" }

func (None) BundleName() string      { return "" }
func (s Loading) BundleName() string { return s.Name }
func (s Loaded) BundleName() string  { return s.Name }
func (s Failed) BundleName() string  { return s.Name }

func (None) activeSchema()    {}
func (Loading) activeSchema() {}
func (Loaded) activeSchema()  {}
func (Failed) activeSchema()  {}
