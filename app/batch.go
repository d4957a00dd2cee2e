package app

import (
	"context"
	"fmt"

	"github.com/artpar/docforge/core/directive"
	"github.com/artpar/docforge/domain/failure"
)

// Input is one document of a batch.
type Input struct {
	Path       string
	Content    string
	OutputPath string
	Metadata   map[string]any
}

// ItemResult is the outcome for one batch input. Exactly one of Result and Err
// is set.
type ItemResult struct {
	Index    int
	Context  map[string]any
	Metadata map[string]any
	Result   *Result
	Err      error
}

// Succeeded reports whether the item produced a result.
func (r ItemResult) Succeeded() bool { return r.Err == nil }

// ProcessMany runs one pipeline per input, strictly in order. A failing item
// records its error and the batch continues. Each item gets a copy of
// baseContext with its zero-based "index" added.
func (e *Engine) ProcessMany(ctx context.Context, inputs []Input, base ExecutionConfiguration, baseContext map[string]any) []ItemResult {
	results := make([]ItemResult, 0, len(inputs))
	for i, in := range inputs {
		itemCtx := copyMap(baseContext)
		itemCtx["index"] = i

		cfg := base
		cfg.InputPath = in.Path
		cfg.InputContent = in.Content
		cfg.OutputPath = in.OutputPath
		cfg.Context = itemCtx

		item := ItemResult{
			Index:    i,
			Context:  itemCtx,
			Metadata: copyMap(in.Metadata),
		}
		if err := ctx.Err(); err != nil {
			item.Err = err
		} else {
			item.Result, item.Err = e.Execute(ctx, cfg)
		}
		if item.Err != nil {
			e.deps.Logger.Warn().Err(item.Err).Int("index", i).Str("input", in.Path).Msg("batch item failed")
		}
		results = append(results, item)
	}
	return results
}

// Aggregate reads every input and renders them as one document. Frontmatter-part
// and merge-arrays directives combine values across inputs; other properties take
// the first input that has them.
func (e *Engine) Aggregate(ctx context.Context, inputs []Input, cfg ExecutionConfiguration) (*Result, error) {
	if err := e.checkConfig(cfg); err != nil {
		return nil, err
	}
	fs := cfg.FileSystem

	docs := make([]directive.Document, 0, len(inputs))
	var warnings []Warning
	for i, in := range inputs {
		text, err := readInput(fs, in.Content, in.Path)
		if err != nil {
			return nil, newPhaseError(1, "Input read failed", fmt.Errorf("input %d: %w", i, err))
		}
		doc, ws, err := e.extract(text)
		if err != nil {
			return nil, err
		}
		doc, err = e.refine(ctx, fs, cfg.ExtractionPromptPath, doc)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		for _, w := range ws {
			w.Message = fmt.Sprintf("input %d", i)
			warnings = append(warnings, w)
		}
	}

	f, loaded, err := e.prepare(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	data, sel, err := e.deps.Directives.ProcessBatch(loaded.Schema.Resolved.Root, docs)
	if err != nil {
		return nil, newPhaseError(2, "Directive processing failed", err)
	}
	mapped, bound, err := e.bind(fs, loaded, data, sel)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, bound...)

	if err := ctx.Err(); err != nil {
		return nil, failure.ProcessingPipelineFailed("aggregate cancelled", err)
	}
	content, written, err := e.render(ctx, fs, f, mapped, cfg.OutputPath)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, written...)
	return &Result{
		ID:         e.deps.IDs.New(),
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

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
