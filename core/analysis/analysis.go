// Package analysis runs pluggable strategies that stand in for built-in directive
// evaluation, under a soft timeout.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/docforge/domain/failure"
	"github.com/artpar/docforge/ports"
)

// Strategy produces mapped data from a prompt and extracted frontmatter.
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, prompt string, data map[string]any) (any, error)
}

// Run races s against timeout. On expiry it returns AnalysisTimeout without waiting
// for the strategy; the context handed to the strategy is cancelled so cooperative
// strategies can stop. A nil result is ExtractionStrategyFailed and a strategy
// error is AIServiceError. A non-positive timeout disables the race.
func Run(ctx context.Context, s Strategy, prompt string, data map[string]any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		return settle(s.Analyze(ctx, prompt, data))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := s.Analyze(ctx, prompt, data)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return settle(o.value, o.err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, failure.AnalysisTimeout(timeout.Milliseconds())
		}
		return nil, ctx.Err()
	}
}

func settle(v any, err error) (any, error) {
	if err != nil {
		if _, typed := failure.KindOf(err); typed {
			return nil, err
		}
		return nil, failure.AIServiceError(err)
	}
	if v == nil {
		return nil, failure.ExtractionStrategyFailed("", "strategy returned no result")
	}
	return v, nil
}

// ServiceStrategy adapts an external AnalysisService. The data is passed as the
// "data" option.
type ServiceStrategy struct {
	Service ports.AnalysisService
}

// Name returns the strategy name.
func (s ServiceStrategy) Name() string { return "service" }

// Analyze forwards to the service.
func (s ServiceStrategy) Analyze(ctx context.Context, prompt string, data map[string]any) (any, error) {
	if s.Service == nil {
		return nil, failure.NotConfigured("analysis service")
	}
	return s.Service.Analyze(ctx, prompt, map[string]any{"data": data})
}
