package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBus_PublishExactAndWildcards(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []string
	bus.Subscribe(SchemaActivated, func(ctx context.Context, e Event) error {
		got = append(got, "exact:"+e.Subject)
		return nil
	})
	bus.Subscribe("schema.*", func(ctx context.Context, e Event) error {
		got = append(got, "group:"+e.Name)
		return nil
	})
	bus.Subscribe("*", func(ctx context.Context, e Event) error {
		got = append(got, "all:"+e.Name)
		return nil
	})

	bus.Publish(context.Background(), Event{Name: SchemaActivated, Source: "injector", Subject: "docs"})
	bus.Publish(context.Background(), Event{Name: PipelineExecuted, Source: "pipeline"})

	want := []string{"exact:docs", "group:schema.activated", "all:schema.activated", "all:pipeline.executed"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	called := 0
	bus.Subscribe(SchemaFailed, func(ctx context.Context, e Event) error {
		called++
		return errors.New("boom")
	})
	bus.Subscribe(SchemaFailed, func(ctx context.Context, e Event) error {
		called++
		return nil
	})

	bus.Publish(context.Background(), Event{Name: SchemaFailed})
	if called != 2 {
		t.Errorf("called = %d, want 2", called)
	}
}

func TestBus_HandlerMaySubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	bus.Subscribe(SchemaCleared, func(ctx context.Context, e Event) error {
		bus.Subscribe(SchemaActivated, func(ctx context.Context, e Event) error { return nil })
		return nil
	})

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), Event{Name: SchemaCleared})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish deadlocked")
	}
	if !bus.HasSubscribers(SchemaActivated) {
		t.Error("subscription from handler was lost")
	}
}

func TestBus_PublishAsync(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(ConfigReloaded, func(ctx context.Context, e Event) error {
		wg.Done()
		return nil
	})

	bus.PublishAsync(context.Background(), Event{Name: ConfigReloaded})
	wg.Wait()
}

func TestBus_HasSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	if bus.HasSubscribers(SchemaActivated) {
		t.Error("empty bus reports subscribers")
	}
	bus.Subscribe("schema.*", func(ctx context.Context, e Event) error { return nil })
	if !bus.HasSubscribers(SchemaActivated) {
		t.Error("group wildcard not matched")
	}
	if bus.HasSubscribers(PipelineExecuted) {
		t.Error("pipeline event should not match schema.*")
	}
}
