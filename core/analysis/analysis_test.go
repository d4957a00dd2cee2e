package analysis

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/artpar/docforge/domain/failure"
)

type funcStrategy func(ctx context.Context, prompt string, data map[string]any) (any, error)

func (f funcStrategy) Name() string { return "func" }

func (f funcStrategy) Analyze(ctx context.Context, prompt string, data map[string]any) (any, error) {
	return f(ctx, prompt, data)
}

type fakeService struct {
	gotPrompt  string
	gotOptions map[string]any
	result     any
	err        error
}

func (s *fakeService) Analyze(ctx context.Context, prompt string, options map[string]any) (any, error) {
	s.gotPrompt = prompt
	s.gotOptions = options
	return s.result, s.err
}

func TestRun_Success(t *testing.T) {
	s := funcStrategy(func(ctx context.Context, prompt string, data map[string]any) (any, error) {
		return map[string]any{"prompt": prompt, "n": len(data)}, nil
	})

	got, err := Run(context.Background(), s, "p", map[string]any{"a": 1}, time.Second)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"prompt": "p", "n": 1}) {
		t.Errorf("Run() = %v", got)
	}
}

func TestRun_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	cancelled := make(chan struct{})

	s := funcStrategy(func(ctx context.Context, prompt string, data map[string]any) (any, error) {
		<-ctx.Done()
		close(cancelled)
		<-release
		return "late", nil
	})

	start := time.Now()
	_, err := Run(context.Background(), s, "p", nil, 20*time.Millisecond)
	fe, ok := failure.As(err)
	if !ok || fe.Kind != failure.KindAnalysisTimeout {
		t.Fatalf("Run() error = %v, want AnalysisTimeout", err)
	}
	if fe.TimeoutMs != 20 {
		t.Errorf("TimeoutMs = %d, want 20", fe.TimeoutMs)
	}
	if time.Since(start) > time.Second {
		t.Error("Run waited for the strategy")
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("strategy context was not cancelled")
	}
}

func TestRun_NilResult(t *testing.T) {
	s := funcStrategy(func(ctx context.Context, prompt string, data map[string]any) (any, error) {
		return nil, nil
	})
	_, err := Run(context.Background(), s, "p", nil, time.Second)
	if !failure.Is(err, failure.KindExtractionStrategyFailed) {
		t.Errorf("Run() error = %v, want ExtractionStrategyFailed", err)
	}
}

func TestRun_StrategyError(t *testing.T) {
	cause := errors.New("upstream 503")
	s := funcStrategy(func(ctx context.Context, prompt string, data map[string]any) (any, error) {
		return nil, cause
	})

	_, err := Run(context.Background(), s, "p", nil, 0)
	if !failure.Is(err, failure.KindAIServiceError) {
		t.Fatalf("Run() error = %v, want AIServiceError", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not wrapped")
	}
}

func TestRun_TypedErrorKept(t *testing.T) {
	s := funcStrategy(func(ctx context.Context, prompt string, data map[string]any) (any, error) {
		return nil, failure.NotConfigured("analysis service")
	})
	_, err := Run(context.Background(), s, "p", nil, time.Second)
	if !failure.Is(err, failure.KindNotConfigured) {
		t.Errorf("Run() error = %v, want NotConfigured", err)
	}
}

func TestServiceStrategy(t *testing.T) {
	svc := &fakeService{result: "ok"}
	s := ServiceStrategy{Service: svc}

	got, err := Run(context.Background(), s, "map it", map[string]any{"a": 1}, time.Second)
	if err != nil || got != "ok" {
		t.Fatalf("Run() = %v, %v", got, err)
	}
	if svc.gotPrompt != "map it" {
		t.Errorf("prompt = %q", svc.gotPrompt)
	}
	if !reflect.DeepEqual(svc.gotOptions["data"], map[string]any{"a": 1}) {
		t.Errorf("options = %v", svc.gotOptions)
	}

	_, err = Run(context.Background(), ServiceStrategy{}, "p", nil, time.Second)
	if !failure.Is(err, failure.KindNotConfigured) {
		t.Errorf("missing service error = %v, want NotConfigured", err)
	}
}

func TestExprStrategy(t *testing.T) {
	s := NewExprStrategy()
	data := map[string]any{
		"title": "guide",
		"sections": []any{
			map[string]any{"tags": []any{"a", "b"}},
			map[string]any{"tags": []any{"b", "c"}},
		},
	}

	got, err := Run(context.Background(), s,
		`{"title": upper(title), "tags": unique(flatten(map(sections, .tags))), "missing": nope}`,
		data, time.Second)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := map[string]any{"title": "GUIDE", "tags": []any{"a", "b", "c"}, "missing": nil}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Run() = %#v, want %#v", got, want)
	}
}

func TestExprStrategy_CacheAndErrors(t *testing.T) {
	s := NewExprStrategy()
	for i := 0; i < 3; i++ {
		if _, err := s.Analyze(context.Background(), " lower(title) ", map[string]any{"title": "X"}); err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
	}
	if s.CachedPrograms() != 1 {
		t.Errorf("CachedPrograms() = %d, want 1", s.CachedPrograms())
	}

	_, err := Run(context.Background(), s, "title +", map[string]any{}, time.Second)
	if !failure.Is(err, failure.KindAIServiceError) {
		t.Errorf("compile error = %v, want AIServiceError", err)
	}
}
