package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/artpar/docforge/adapters/memory"
	"github.com/artpar/docforge/domain/execution"
	"github.com/artpar/docforge/domain/failure"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func record(id, bundle string, status execution.Status, offset time.Duration) execution.Record {
	return execution.Record{
		ID:        id,
		Bundle:    bundle,
		Format:    "json",
		Status:    status,
		Warnings:  []string{"Unresolved: x"},
		StartedAt: base.Add(offset),
	}
}

func TestResultStore_SaveAndGet(t *testing.T) {
	store := memory.NewResultStore(10)
	ctx := context.Background()

	if err := store.Save(ctx, record("a", "report", execution.StatusSucceeded, 0)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Bundle != "report" || len(got.Warnings) != 1 {
		t.Errorf("got %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !failure.Is(err, failure.KindNotFound) {
		t.Errorf("Get(missing) error = %v, want NotFound", err)
	}
}

func TestResultStore_SaveCopiesWarnings(t *testing.T) {
	store := memory.NewResultStore(10)
	ctx := context.Background()

	rec := record("a", "report", execution.StatusSucceeded, 0)
	store.Save(ctx, rec)
	rec.Warnings[0] = "changed"

	got, _ := store.Get(ctx, "a")
	if got.Warnings[0] != "Unresolved: x" {
		t.Errorf("stored warnings changed with the caller's slice: %v", got.Warnings)
	}
}

func TestResultStore_EvictsOldest(t *testing.T) {
	store := memory.NewResultStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Save(ctx, record(fmt.Sprintf("r%d", i), "b", execution.StatusSucceeded, time.Duration(i)*time.Second))
	}

	if store.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", store.Len())
	}
	if _, err := store.Get(ctx, "r1"); err == nil {
		t.Error("r1 should have been evicted")
	}
	if _, err := store.Get(ctx, "r4"); err != nil {
		t.Errorf("r4 should be kept: %v", err)
	}
}

func TestResultStore_ReplaceKeepsPosition(t *testing.T) {
	store := memory.NewResultStore(2)
	ctx := context.Background()

	store.Save(ctx, record("a", "b", execution.StatusSucceeded, 0))
	store.Save(ctx, record("a", "b", execution.StatusFailed, 0))
	store.Save(ctx, record("c", "b", execution.StatusSucceeded, time.Second))

	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", store.Len())
	}
	got, _ := store.Get(ctx, "a")
	if got.Status != execution.StatusFailed {
		t.Errorf("Status = %s, want replaced record", got.Status)
	}
}

func TestResultStore_List(t *testing.T) {
	store := memory.NewResultStore(0)
	ctx := context.Background()

	store.Save(ctx, record("1", "report", execution.StatusSucceeded, 1*time.Second))
	store.Save(ctx, record("2", "memo", execution.StatusFailed, 2*time.Second))
	store.Save(ctx, record("3", "report", execution.StatusFailed, 3*time.Second))
	store.Save(ctx, record("4", "report", execution.StatusSucceeded, 3*time.Second))

	tests := []struct {
		name   string
		filter execution.Filter
		want   []string
	}{
		{"all newest first", execution.Filter{}, []string{"4", "3", "2", "1"}},
		{"by bundle", execution.Filter{Bundle: "report"}, []string{"4", "3", "1"}},
		{"by status", execution.Filter{Status: execution.StatusFailed}, []string{"3", "2"}},
		{"limit", execution.Filter{Limit: 2}, []string{"4", "3"}},
		{"no match", execution.Filter{Bundle: "none"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			var ids []string
			for _, r := range recs {
				ids = append(ids, r.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestResultStore_Concurrent(t *testing.T) {
	store := memory.NewResultStore(50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Save(ctx, record(fmt.Sprintf("r%d", i), "b", execution.StatusSucceeded, time.Duration(i)))
			store.List(ctx, execution.Filter{Limit: 5})
		}(i)
	}
	wg.Wait()

	if store.Len() != 50 {
		t.Errorf("Len() = %d, want 50", store.Len())
	}
}
