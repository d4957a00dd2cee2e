package app_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/artpar/docforge/adapters/fs"
	"github.com/artpar/docforge/app"
	"github.com/artpar/docforge/domain/failure"
)

func TestProcessMany_IsolatesFailures(t *testing.T) {
	f := newFixture(t, reportSchema, reportTemplate)

	inputs := []app.Input{
		{Content: "---\ntitle: One\ncategory: a\n---\n", Metadata: map[string]any{"source": "first"}},
		{Content: "missing frontmatter", Metadata: map[string]any{"source": "second"}},
		{Content: "---\ntitle: Three\ncategory: c\n---\n"},
	}
	base := map[string]any{"batch": "nightly"}

	results := f.engine.ProcessMany(context.Background(), inputs, app.ExecutionConfiguration{OutputFormat: "json"}, base)
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	if !results[0].Succeeded() || results[0].Result.Output != "# One\nCategory: a" {
		t.Errorf("item 0 = %+v", results[0])
	}
	if results[1].Succeeded() || !failure.Is(results[1].Err, failure.KindExtractionStrategyFailed) {
		t.Errorf("item 1 error = %v, want ExtractionStrategyFailed", results[1].Err)
	}
	if !results[2].Succeeded() || results[2].Result.Output != "# Three\nCategory: c" {
		t.Errorf("item 2 = %+v", results[2])
	}

	for i, r := range results {
		if r.Index != i {
			t.Errorf("item %d Index = %d", i, r.Index)
		}
		want := map[string]any{"batch": "nightly", "index": i}
		if !reflect.DeepEqual(r.Context, want) {
			t.Errorf("item %d Context = %v, want %v", i, r.Context, want)
		}
	}
	if _, leaked := base["index"]; leaked {
		t.Error("base context was mutated")
	}

	results[0].Metadata["source"] = "changed"
	if inputs[0].Metadata["source"] != "first" {
		t.Error("item metadata should be an independent copy")
	}
	if results[2].Metadata == nil {
		t.Error("Metadata should be non-nil for inputs without metadata")
	}

	if n := len(f.results.records); n != 3 {
		t.Errorf("ledger records = %d, want 3", n)
	}
}

func TestProcessMany_RunsInInputOrder(t *testing.T) {
	f := newFixture(t, reportSchema, reportTemplate)

	inputs := make([]app.Input, 5)
	for i := range inputs {
		inputs[i] = app.Input{Content: "---\ntitle: T\ncategory: c\n---\n"}
	}
	results := f.engine.ProcessMany(context.Background(), inputs, app.ExecutionConfiguration{OutputFormat: "json"}, nil)

	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("item %d error = %v", i, r.Err)
		}
		if want := "run-" + string(rune('1'+i)); r.Result.ID != want {
			t.Errorf("item %d ID = %s, want %s", i, r.Result.ID, want)
		}
	}
}

func TestProcessMany_StopsStartingItemsAfterCancel(t *testing.T) {
	f := newFixture(t, reportSchema, reportTemplate)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := f.engine.ProcessMany(ctx, []app.Input{{Content: "---\ntitle: T\n---\n"}}, app.ExecutionConfiguration{OutputFormat: "json"}, nil)
	if results[0].Err != context.Canceled {
		t.Errorf("Err = %v, want context.Canceled", results[0].Err)
	}
}

func TestAggregate(t *testing.T) {
	schemaSrc := `{
		"type": "object",
		"properties": {
			"version": {"type": "string"},
			"requirements": {"type": "array", "x-merge-arrays": true, "items": {"type": "string"}},
			"owners": {"type": "array", "x-merge-arrays": true, "x-derived-unique": true, "items": {"type": "string"}}
		}
	}`
	f := newFixture(t, schemaSrc, "{version}: {requirements} / {owners}")

	inputs := []app.Input{
		{Content: "---\nversion: v1\nrequirements: [REQ-1, REQ-2]\nowners: [ann]\n---\n"},
		{Content: "---\nversion: v2\nrequirements: [REQ-2, REQ-3]\nowners: [ann, bob]\n---\n"},
	}
	res, err := f.engine.Aggregate(context.Background(), inputs, app.ExecutionConfiguration{OutputFormat: "json"})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if res.Output != "v1: REQ-1, REQ-2, REQ-2, REQ-3 / ann, bob" {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestAggregate_EmptyFrontmatterWarnsPerInput(t *testing.T) {
	f := newFixture(t, reportSchema, reportTemplate)

	res, err := f.engine.Aggregate(context.Background(), []app.Input{
		{Content: "---\ntitle: T\ncategory: c\n---\n"},
		{Content: "---\n---\n"},
	}, app.ExecutionConfiguration{OutputFormat: "json"})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if got := app.Strings(res.Warnings); !reflect.DeepEqual(got, []string{"Empty frontmatter: input 1"}) {
		t.Errorf("Warnings = %v", got)
	}
}

func TestAggregate_CancelledBeforeWrite(t *testing.T) {
	f := newFixture(t, reportSchema, reportTemplate)
	mem := fs.NewMemory(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Aggregate(ctx, []app.Input{
		{Content: "---\ntitle: T\ncategory: c\n---\n"},
	}, app.ExecutionConfiguration{OutputFormat: "json", OutputPath: "out/all.json", FileSystem: mem})
	if !failure.Is(err, failure.KindProcessingPipelineFailed) {
		t.Errorf("Aggregate() error = %v, want ProcessingPipelineFailed", err)
	}
	if len(mem.Paths()) != 0 {
		t.Errorf("files written after cancellation: %v", mem.Paths())
	}
}
