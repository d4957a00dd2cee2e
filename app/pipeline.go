package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/artpar/docforge/core/events"
	"github.com/artpar/docforge/core/template"
	"github.com/artpar/docforge/domain/execution"
	"github.com/artpar/docforge/domain/failure"
	"github.com/artpar/docforge/ports"
)

// ExecutionConfiguration describes one pipeline run.
type ExecutionConfiguration struct {
	InputPath    string
	InputContent string // used instead of reading InputPath when non-empty
	OutputPath   string
	OutputFormat string

	// Prompt files override the active bundle's prompts. They only matter when
	// the engine has an analysis strategy.
	ExtractionPromptPath string
	MappingPromptPath    string

	// FileSystem is optional. Without it the input must be inline and output is
	// only returned.
	FileSystem ports.FileSystem

	// Context is copied onto the result untouched.
	Context map[string]any
}

// Result is a successful pipeline run.
type Result struct {
	ID         string              `json:"id"`
	Bundle     string              `json:"bundle"`
	Output     string              `json:"output"`
	OutputPath string              `json:"outputPath,omitempty"`
	Format     string              `json:"format"`
	MimeType   string              `json:"mimeType"`
	ExecutedAt time.Time           `json:"executedAt"`
	Warnings   []Warning           `json:"warnings"`
	Mapped     template.MappedData `json:"-"`
	Context    map[string]any      `json:"context,omitempty"`
}

// Pipeline runs the three phases at most once.
type Pipeline struct {
	id       string
	cfg      ExecutionConfiguration
	engine   *Engine
	executed atomic.Bool
}

// ID returns the pipeline identifier.
func (p *Pipeline) ID() string { return p.id }

// Executed reports whether Execute or Dispose has been called.
func (p *Pipeline) Executed() bool { return p.executed.Load() }

// Dispose retires the pipeline without running it. Later Execute calls fail.
func (p *Pipeline) Dispose() {
	p.executed.Store(true)
}

// Execute runs extraction, processing and rendering. A second call fails with
// AlreadyExecuted and has no side effects.
func (p *Pipeline) Execute(ctx context.Context) (*Result, error) {
	if !p.executed.CompareAndSwap(false, true) {
		return nil, failure.AlreadyExecuted(p.id)
	}

	e := p.engine
	started := e.deps.Clock.Now()

	res, err := p.run(ctx)
	p.finish(ctx, started, res, err)
	return res, err
}

func (p *Pipeline) run(ctx context.Context) (*Result, error) {
	e := p.engine
	cfg := p.cfg
	fs := cfg.FileSystem

	if err := e.checkConfig(cfg); err != nil {
		return nil, err
	}

	// Phase 1
	text, err := readInput(fs, cfg.InputContent, cfg.InputPath)
	if err != nil {
		return nil, newPhaseError(1, "Input read failed", err)
	}
	doc, warnings, err := e.extract(text)
	if err != nil {
		return nil, err
	}
	doc, err = e.refine(ctx, fs, cfg.ExtractionPromptPath, doc)
	if err != nil {
		return nil, err
	}

	// Phase 2
	f, loaded, err := e.prepare(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	prompt, err := e.prompt(fs, 2, loaded.Prompts.Mapping, cfg.MappingPromptPath)
	if err != nil {
		return nil, err
	}
	data, sel, err := e.process(ctx, loaded, prompt, doc)
	if err != nil {
		return nil, err
	}
	mapped, bound, err := e.bind(fs, loaded, data, sel)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, bound...)

	// Phase 3
	content, written, err := e.render(ctx, fs, f, mapped, cfg.OutputPath)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, written...)

	return &Result{
		ID:         p.id,
		Bundle:     loaded.Name,
		Output:     content,
		OutputPath: cfg.OutputPath,
		Format:     f.Name(),
		MimeType:   f.MimeType(),
		ExecutedAt: e.deps.Clock.Now(),
		Warnings:   nonNil(warnings),
		Mapped:     mapped,
		Context:    cfg.Context,
	}, nil
}

// finish records the run in the ledger and metrics, and announces it.
func (p *Pipeline) finish(ctx context.Context, started time.Time, res *Result, err error) {
	e := p.engine
	d := e.deps.Clock.Now().Sub(started)

	rec := execution.Record{
		ID:         p.id,
		Bundle:     e.deps.Injector.Current().BundleName(),
		InputPath:  p.cfg.InputPath,
		OutputPath: p.cfg.OutputPath,
		Format:     p.cfg.OutputFormat,
		Status:     execution.StatusSucceeded,
		StartedAt:  started,
		Duration:   d,
	}
	if res != nil {
		rec.Bundle = res.Bundle
		rec.Warnings = Strings(res.Warnings)
		rec.Format = res.Format
	}
	if err != nil {
		rec.Status = execution.StatusFailed
		rec.Error = err.Error()
		if kind, ok := failure.KindOf(err); ok {
			rec.ErrorKind = string(kind)
		}
	}

	log := e.deps.Logger.With().Str("pipeline", p.id).Str("bundle", rec.Bundle).Logger()
	if err != nil {
		log.Warn().Err(err).Str("kind", rec.ErrorKind).Msg("pipeline failed")
	} else {
		log.Info().Int("warnings", len(res.Warnings)).Dur("duration", d).Msg("pipeline executed")
	}

	if e.deps.Results != nil {
		if serr := e.deps.Results.Save(ctx, rec); serr != nil {
			log.Error().Err(serr).Msg("failed to record execution")
		}
	}
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordExecution(rec.Bundle, rec.Format, string(rec.Status), d)
		if res != nil {
			for _, w := range res.Warnings {
				e.deps.Metrics.RecordWarning(w.Kind)
			}
		}
	}
	if e.deps.Bus != nil {
		name := events.PipelineExecuted
		if err != nil {
			name = events.PipelineFailed
		}
		e.deps.Bus.Publish(ctx, events.Event{
			Name:    name,
			Source:  "pipeline",
			Subject: p.id,
			Data: map[string]any{
				"bundle":   rec.Bundle,
				"format":   rec.Format,
				"status":   string(rec.Status),
				"warnings": len(rec.Warnings),
			},
		})
	}
}

func nonNil(ws []Warning) []Warning {
	if ws == nil {
		return []Warning{}
	}
	return ws
}
