// Package app orchestrates extraction, directive processing, mapping and rendering
// into single-use pipelines.
package app

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/artpar/docforge/core/analysis"
	"github.com/artpar/docforge/core/directive"
	"github.com/artpar/docforge/core/events"
	"github.com/artpar/docforge/core/formatter"
	"github.com/artpar/docforge/core/injector"
	"github.com/artpar/docforge/core/template"
	"github.com/artpar/docforge/domain/failure"
	"github.com/artpar/docforge/domain/frontmatter"
	"github.com/artpar/docforge/ports"
	"github.com/rs/zerolog"
)

// DefaultMaxPathLength bounds input and output paths.
const DefaultMaxPathLength = 4096

// Recorder receives execution metrics. adapters/metrics implements it.
type Recorder interface {
	RecordExecution(bundle, format, status string, d time.Duration)
	RecordWarning(kind string)
}

// EngineDeps are the engine's collaborators. Injector, Clock and IDs are required;
// the rest default or are optional.
type EngineDeps struct {
	Injector   *injector.Injector
	Directives *directive.Processor
	Mapper     *template.Mapper
	Formatters *formatter.Registry
	Extractor  frontmatter.Extractor

	// Strategy replaces directive evaluation when set and the active bundle has
	// a mapping prompt. With an extraction prompt it also refines the
	// frontmatter in phase 1.
	Strategy        analysis.Strategy
	AnalysisTimeout time.Duration

	// Files reads bundle artifacts such as x-template files. When nil the
	// execution's FileSystem is used.
	Files ports.FileSystem

	Catalog ports.FormatCatalog
	Results ports.ResultStore
	Metrics Recorder
	Bus     *events.Bus

	Clock  ports.Clock
	IDs    ports.IDGenerator
	Logger zerolog.Logger

	MaxPathLength int
}

// Engine builds pipelines and runs batches.
type Engine struct {
	deps EngineDeps
}

// NewEngine creates an engine, filling defaults for the optional core services.
func NewEngine(deps EngineDeps) *Engine {
	if deps.Directives == nil {
		deps.Directives = directive.NewProcessor(deps.Logger)
	}
	if deps.Mapper == nil {
		deps.Mapper = template.NewMapper(template.ArrayCSV)
	}
	if deps.Formatters == nil {
		deps.Formatters = formatter.NewBuiltinRegistry()
	}
	if deps.Extractor == nil {
		deps.Extractor = frontmatter.LineStrategy{}
	}
	if deps.MaxPathLength <= 0 {
		deps.MaxPathLength = DefaultMaxPathLength
	}
	return &Engine{deps: deps}
}

// Injector returns the engine's schema injector.
func (e *Engine) Injector() *injector.Injector {
	return e.deps.Injector
}

// NewPipeline creates a single-use pipeline for cfg.
func (e *Engine) NewPipeline(cfg ExecutionConfiguration) *Pipeline {
	return &Pipeline{
		id:     e.deps.IDs.New(),
		cfg:    cfg,
		engine: e,
	}
}

// Execute is shorthand for NewPipeline(cfg).Execute(ctx).
func (e *Engine) Execute(ctx context.Context, cfg ExecutionConfiguration) (*Result, error) {
	return e.NewPipeline(cfg).Execute(ctx)
}

func (e *Engine) checkConfig(cfg ExecutionConfiguration) error {
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		return failure.EmptyInput("outputFormat")
	}
	if len(cfg.InputPath) > e.deps.MaxPathLength {
		return failure.TooLong("inputPath", e.deps.MaxPathLength)
	}
	if len(cfg.OutputPath) > e.deps.MaxPathLength {
		return failure.TooLong("outputPath", e.deps.MaxPathLength)
	}
	return nil
}

// readInput returns the configured content, or reads InputPath through fs.
func readInput(fs ports.FileSystem, content, path string) (string, error) {
	if content != "" {
		return content, nil
	}
	if fs == nil {
		return "", failure.NotConfigured("file system")
	}
	if strings.TrimSpace(path) == "" {
		return "", failure.EmptyInput("inputPath")
	}
	return fs.ReadTextFile(path)
}

// extract runs phase 1 over text.
func (e *Engine) extract(text string) (directive.Document, []Warning, error) {
	content, err := e.deps.Extractor.Extract(text)
	if err != nil {
		return directive.Document{}, nil, newPhaseError(1, "Frontmatter extraction failed", err)
	}

	var warnings []Warning
	if content.Len() == 0 {
		warnings = append(warnings, Warning{Phase: 1, Kind: WarnEmptyFrontmatter})
	}
	return directive.Document{
		Frontmatter: content.Map(),
		Body:        frontmatter.Body(text),
	}, warnings, nil
}

// outputFormat is the formatter and catalog entry chosen for an execution.
type outputFormat struct {
	formatter.Formatter
	mime string
}

func (o outputFormat) MimeType() string { return o.mime }

// prepare checks the phase 2 preconditions: a formatter for format and a loaded
// bundle. The format name is looked up in the catalog first, so configured
// names and MIME types apply; unknown names fall back to the registry.
func (e *Engine) prepare(format string) (outputFormat, injector.Loaded, error) {
	name := strings.ToLower(strings.TrimSpace(format))
	if name == "yml" {
		name = "yaml"
	}
	var mime string
	if e.deps.Catalog != nil {
		if info, ok := e.deps.Catalog.GetFormat(name); ok {
			name = strings.ToLower(info.Name)
			mime = info.MimeType
		}
	}
	f, ok := e.deps.Formatters.Get(name)
	if !ok {
		return outputFormat{}, injector.Loaded{}, newPhaseError(2, "Processing failed", failure.NotConfigured("processor"))
	}
	if mime == "" {
		mime = f.MimeType()
	}

	loaded, err := e.deps.Injector.Active()
	if err != nil {
		return outputFormat{}, injector.Loaded{}, newPhaseError(2, "Processing failed", err)
	}
	return outputFormat{Formatter: f, mime: mime}, loaded, nil
}

// bind runs phase 2 for data that already went through directives.
func (e *Engine) bind(fs ports.FileSystem, loaded injector.Loaded, data map[string]any, sel directive.Selection) (template.MappedData, []Warning, error) {
	fs = e.artifacts(fs)
	dir := loaded.Schema.Dir
	tmpl, err := e.selectTemplate(fs, dir, loaded.Template.Template, sel.Document)
	if err != nil {
		return template.MappedData{}, nil, newPhaseError(2, "Template selection failed", err)
	}
	items, err := e.itemTemplates(fs, dir, sel.Items)
	if err != nil {
		return template.MappedData{}, nil, newPhaseError(2, "Template selection failed", err)
	}

	mapped := e.deps.Mapper.MapItems(data, tmpl, items, loaded.Schema.Resolved.Properties)

	var warnings []Warning
	for _, p := range mapped.Unresolved {
		warnings = append(warnings, Warning{Phase: 2, Kind: WarnUnresolved, Path: p})
	}
	for _, p := range mapped.MissingRequiredKeys {
		warnings = append(warnings, Warning{Phase: 2, Kind: WarnMissingRequired, Path: p})
	}
	for _, p := range mapped.UnmatchedKeys {
		warnings = append(warnings, Warning{Phase: 2, Kind: WarnUnmatched, Path: p})
	}
	return mapped, warnings, nil
}

// prompt returns the prompt file named by path, or fallback.
func (e *Engine) prompt(fs ports.FileSystem, phase int, fallback, path string) (string, error) {
	if path == "" || fs == nil {
		return fallback, nil
	}
	text, err := fs.ReadTextFile(path)
	if err != nil {
		return "", newPhaseError(phase, "Prompt read failed", err)
	}
	return text, nil
}

// refine runs the analysis strategy over the extracted frontmatter when an
// extraction prompt applies. The strategy sees the frontmatter plus "body" and
// its object result replaces the frontmatter.
func (e *Engine) refine(ctx context.Context, fs ports.FileSystem, path string, doc directive.Document) (directive.Document, error) {
	if e.deps.Strategy == nil {
		return doc, nil
	}
	var fallback string
	if loaded, ok := e.deps.Injector.Current().(injector.Loaded); ok {
		fallback = loaded.Prompts.Extraction
	}
	prompt, err := e.prompt(fs, 1, fallback, path)
	if err != nil || strings.TrimSpace(prompt) == "" {
		return doc, err
	}

	input := make(map[string]any, len(doc.Frontmatter)+1)
	for k, v := range doc.Frontmatter {
		input[k] = v
	}
	input["body"] = doc.Body

	v, err := analysis.Run(ctx, e.deps.Strategy, prompt, input, e.deps.AnalysisTimeout)
	if err != nil {
		return doc, newPhaseError(1, "Frontmatter extraction failed", err)
	}
	data, ok := v.(map[string]any)
	if !ok {
		return doc, newPhaseError(1, "Frontmatter extraction failed",
			failure.ExtractionStrategyFailed(fmt.Sprint(v), "strategy result is not an object"))
	}
	doc.Frontmatter = data
	return doc, nil
}

// process runs directives, or the analysis strategy when one applies.
func (e *Engine) process(ctx context.Context, loaded injector.Loaded, prompt string, doc directive.Document) (map[string]any, directive.Selection, error) {
	if e.deps.Strategy != nil && strings.TrimSpace(prompt) != "" {
		v, err := analysis.Run(ctx, e.deps.Strategy, prompt, doc.Frontmatter, e.deps.AnalysisTimeout)
		if err != nil {
			return nil, directive.Selection{}, newPhaseError(2, "Analysis failed", err)
		}
		data, ok := v.(map[string]any)
		if !ok {
			return nil, directive.Selection{}, newPhaseError(2, "Analysis failed",
				failure.ExtractionStrategyFailed(fmt.Sprint(v), "strategy result is not an object"))
		}
		return data, directive.Selection{Items: map[string]any{}}, nil
	}

	data, sel, err := e.deps.Directives.Process(loaded.Schema.Resolved.Root, doc)
	if err != nil {
		return nil, directive.Selection{}, newPhaseError(2, "Directive processing failed", err)
	}
	return data, sel, nil
}

// selectTemplate prefers an x-template selection over the bundle template.
func (e *Engine) selectTemplate(fs ports.FileSystem, dir string, base template.TemplateFormat, selected any) (template.TemplateFormat, error) {
	if selected == nil {
		return base, nil
	}
	switch t := selected.(type) {
	case string:
		src, err := templateSource(fs, dir, t)
		if err != nil {
			return template.TemplateFormat{}, err
		}
		return template.ParseTemplate(string(base.Format), []byte(src))
	default:
		return template.NewTemplateFormat(string(base.Format), t)
	}
}

func (e *Engine) itemTemplates(fs ports.FileSystem, dir string, items map[string]any) (map[string]any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(items))
	for path, t := range items {
		s, ok := t.(string)
		if !ok {
			out[path] = t
			continue
		}
		src, err := templateSource(fs, dir, s)
		if err != nil {
			return nil, err
		}
		out[path] = src
	}
	return out, nil
}

// artifacts returns the file system bundle artifacts are read from.
func (e *Engine) artifacts(fs ports.FileSystem) ports.FileSystem {
	if e.deps.Files != nil {
		return e.deps.Files
	}
	return fs
}

// templateSource returns ref itself when it is an inline template. A file
// reference is resolved against dir, the schema's directory, and must exist.
func templateSource(fs ports.FileSystem, dir, ref string) (string, error) {
	if !looksLikeFile(ref) {
		return ref, nil
	}
	if fs == nil {
		return "", failure.NotConfigured("file system")
	}
	path := ref
	if dir != "" && !filepath.IsAbs(ref) {
		path = filepath.Join(dir, ref)
	}
	if !fs.Exists(path) {
		return "", failure.NotFound("template", ref)
	}
	return fs.ReadTextFile(path)
}

// looksLikeFile reports whether an x-template string names a file rather than
// holding the template itself.
func looksLikeFile(s string) bool {
	return s != "" && len(s) < 1024 &&
		!strings.ContainsAny(s, "\n{}") &&
		filepath.Ext(s) != ""
}

// render runs phase 3: format and optionally write.
func (e *Engine) render(ctx context.Context, fs ports.FileSystem, f formatter.Formatter, mapped template.MappedData, outputPath string) (string, []Warning, error) {
	value := mapped.Output
	if value == nil {
		value = mapped.SchemaCompliantData
	}

	var buf bytes.Buffer
	if err := f.Format(&buf, value); err != nil {
		return "", nil, newPhaseError(3, "Output formatting failed", err)
	}
	content := buf.String()

	var warnings []Warning
	if outputPath == "" {
		return content, nil, nil
	}
	if err := ctx.Err(); err != nil {
		return "", nil, newPhaseError(3, "Output write cancelled", failure.ProcessingPipelineFailed("cancelled before write", err))
	}
	if ext := filepath.Ext(outputPath); ext != "" && e.deps.Catalog != nil && !e.deps.Catalog.IsExtensionSupported(ext) {
		warnings = append(warnings, Warning{Phase: 3, Kind: WarnUnsupportedExtension, Path: outputPath})
	}
	if fs == nil {
		warnings = append(warnings, Warning{Phase: 3, Kind: WarnWriteSkipped, Path: outputPath})
		return content, warnings, nil
	}
	if err := fs.WriteFile(outputPath, buf.Bytes()); err != nil {
		return "", nil, newPhaseError(3, "Output write failed", err)
	}
	return content, warnings, nil
}
