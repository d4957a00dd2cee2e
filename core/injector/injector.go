// Package injector stages named schema, template and prompt bundles and activates
// one of them at a time, so a long-running process can switch configurations
// without restarting.
//
// All methods are safe for concurrent use.
package injector

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/docforge/core/events"
	"github.com/artpar/docforge/core/schema"
	"github.com/artpar/docforge/core/template"
	"github.com/artpar/docforge/domain/failure"
	"github.com/artpar/docforge/ports"
	"github.com/rs/zerolog"
)

// Deps are the injector's collaborators. Bus is optional.
type Deps struct {
	Clock  ports.Clock
	Bus    *events.Bus
	Logger zerolog.Logger
}

// Injector is the bundle registry and its activation state machine.
type Injector struct {
	mu        sync.RWMutex
	schemas   map[string]SchemaContext
	templates map[string]TemplateContext
	prompts   map[string]PromptContext
	current   ActiveSchema

	// generation increases on every state change so a slow activation can tell
	// it was superseded.
	generation uint64

	clock  ports.Clock
	bus    *events.Bus
	logger zerolog.Logger
}

// New creates an injector in the None state.
func New(deps Deps) *Injector {
	return &Injector{
		schemas:   make(map[string]SchemaContext),
		templates: make(map[string]TemplateContext),
		prompts:   make(map[string]PromptContext),
		current:   None{},
		clock:     deps.Clock,
		bus:       deps.Bus,
		logger:    deps.Logger,
	}
}

// InjectSchema stages a schema under name, replacing any previous one.
func (i *Injector) InjectSchema(name string, def *schema.Definition) error {
	if err := checkName(name); err != nil {
		return err
	}
	if def == nil {
		return failure.InvalidFormat("null", "schema object")
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.schemas[name] = SchemaContext{Name: name, Definition: def, CreatedAt: i.clock.Now()}
	return nil
}

// InjectSchemaSource parses src as JSON or YAML and stages it. Nothing is staged
// when the schema is invalid.
func (i *Injector) InjectSchemaSource(name string, src []byte) error {
	def, err := schema.Parse(src)
	if err != nil {
		return err
	}
	return i.InjectSchema(name, def)
}

// InjectSchemaFile is InjectSchemaSource for a schema read from path. Relative
// template references in the schema resolve against the file's directory.
func (i *Injector) InjectSchemaFile(name, path string, src []byte) error {
	def, err := schema.Parse(src)
	if err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.schemas[name] = SchemaContext{
		Name:       name,
		Definition: def,
		Dir:        filepath.Dir(path),
		CreatedAt:  i.clock.Now(),
	}
	return nil
}

// InjectTemplate stages a template under name.
func (i *Injector) InjectTemplate(name string, tmpl template.TemplateFormat) error {
	if err := checkName(name); err != nil {
		return err
	}
	if tmpl.Template == nil {
		return failure.InvalidFormat("null", "string or object template")
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.templates[name] = TemplateContext{Name: name, Template: tmpl, CreatedAt: i.clock.Now()}
	return nil
}

// InjectPrompts stages the extraction and mapping prompts under name.
func (i *Injector) InjectPrompts(name, extraction, mapping string) error {
	if err := checkName(name); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.prompts[name] = PromptContext{
		Name:       name,
		Extraction: extraction,
		Mapping:    mapping,
		CreatedAt:  i.clock.Now(),
	}
	return nil
}

// Activate makes the bundle staged under name current. Artifacts are checked in
// the order schema, template, prompts; the first missing one fails with NotFound.
// Any failure leaves the injector in the Failed state.
func (i *Injector) Activate(ctx context.Context, name string) (Loaded, error) {
	if err := checkName(name); err != nil {
		return Loaded{}, err
	}

	i.mu.Lock()
	i.generation++
	gen := i.generation
	i.current = Loading{Name: name, StartedAt: i.clock.Now()}

	sc, hasSchema := i.schemas[name]
	tc, hasTemplate := i.templates[name]
	pc, hasPrompts := i.prompts[name]

	var err error
	switch {
	case !hasSchema:
		err = failure.NotFound("schema", name)
	case !hasTemplate:
		err = failure.NotFound("template", name)
	case !hasPrompts:
		err = failure.NotFound("prompts", name)
	}
	if err != nil {
		i.current = Failed{Name: name, Err: err, FailedAt: i.clock.Now()}
		i.mu.Unlock()
		i.publishFailed(ctx, name, err)
		return Loaded{}, err
	}
	i.mu.Unlock()

	resolved, err := sc.Definition.Resolve()

	i.mu.Lock()
	if i.generation != gen {
		actual := i.current.Kind()
		i.mu.Unlock()
		return Loaded{}, failure.InvalidState("Loading", actual)
	}
	i.generation++
	if err != nil {
		i.current = Failed{Name: name, Err: err, FailedAt: i.clock.Now()}
		i.mu.Unlock()
		i.publishFailed(ctx, name, err)
		return Loaded{}, err
	}

	sc.Resolved = resolved
	loaded := Loaded{
		Name:        name,
		Schema:      sc,
		Template:    tc,
		Prompts:     pc,
		ActivatedAt: i.clock.Now(),
	}
	i.current = loaded
	i.mu.Unlock()

	i.logger.Info().
		Str("schema", name).
		Int("properties", len(resolved.Properties)).
		Msg("schema activated")
	i.publish(ctx, events.SchemaActivated, name, map[string]any{
		"properties": len(resolved.Properties),
	})
	return loaded, nil
}

// Current returns the current state.
func (i *Injector) Current() ActiveSchema {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.current
}

// Active returns the loaded bundle, or InvalidState when the current state is
// anything other than Loaded.
func (i *Injector) Active() (Loaded, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	loaded, ok := i.current.(Loaded)
	if !ok {
		return Loaded{}, failure.InvalidState("Loaded", i.current.Kind())
	}
	return loaded, nil
}

// ClearSchema removes all artifacts staged under name. If name is current the
// state resets to None.
func (i *Injector) ClearSchema(ctx context.Context, name string) {
	i.mu.Lock()
	delete(i.schemas, name)
	delete(i.templates, name)
	delete(i.prompts, name)

	reset := name != "" && i.current.BundleName() == name
	if reset {
		i.generation++
		i.current = None{}
	}
	i.mu.Unlock()

	i.logger.Debug().Str("schema", name).Bool("was_active", reset).Msg("schema cleared")
	i.publish(ctx, events.SchemaCleared, name, map[string]any{"was_active": reset})
}

// ClearAll empties the registry and resets the state to None.
func (i *Injector) ClearAll(ctx context.Context) {
	i.mu.Lock()
	i.schemas = make(map[string]SchemaContext)
	i.templates = make(map[string]TemplateContext)
	i.prompts = make(map[string]PromptContext)
	i.generation++
	i.current = None{}
	i.mu.Unlock()

	i.publish(ctx, events.SchemaCleared, "*", nil)
}

// ListAvailableSchemas returns the sorted names with a staged schema.
func (i *Injector) ListAvailableSchemas() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	names := make([]string, 0, len(i.schemas))
	for name := range i.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bundle describes what is staged under one name.
type Bundle struct {
	Name        string `json:"name"`
	HasSchema   bool   `json:"has_schema"`
	HasTemplate bool   `json:"has_template"`
	HasPrompts  bool   `json:"has_prompts"`
	Active      bool   `json:"active"`
}

// Bundles describes every staged name, sorted.
func (i *Injector) Bundles() []Bundle {
	i.mu.RLock()
	defer i.mu.RUnlock()

	seen := make(map[string]bool)
	for n := range i.schemas {
		seen[n] = true
	}
	for n := range i.templates {
		seen[n] = true
	}
	for n := range i.prompts {
		seen[n] = true
	}

	_, loaded := i.current.(Loaded)
	out := make([]Bundle, 0, len(seen))
	for n := range seen {
		_, s := i.schemas[n]
		_, t := i.templates[n]
		_, p := i.prompts[n]
		out = append(out, Bundle{
			Name:        n,
			HasSchema:   s,
			HasTemplate: t,
			HasPrompts:  p,
			Active:      loaded && i.current.BundleName() == n,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (i *Injector) publishFailed(ctx context.Context, name string, err error) {
	i.logger.Warn().Err(err).Str("schema", name).Msg("schema activation failed")

	data := map[string]any{"error": err.Error()}
	if kind, ok := failure.KindOf(err); ok {
		data["kind"] = string(kind)
	}
	i.publish(ctx, events.SchemaFailed, name, data)
}

func (i *Injector) publish(ctx context.Context, name, subject string, data map[string]any) {
	if i.bus == nil {
		return
	}
	i.bus.Publish(ctx, events.Event{
		Name:    name,
		Source:  "injector",
		Subject: subject,
		Data:    data,
	})
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return failure.EmptyInput("name")
	}
	return nil
}
