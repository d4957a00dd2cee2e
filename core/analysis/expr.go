package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/artpar/docforge/core/directive"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprStrategy treats the mapping prompt as an Expr expression evaluated over the
// frontmatter. The frontmatter keys are top-level variables and the whole map is
// also visible as "data":
//
//	{"title": upper(title), "tags": unique(flatten(map(sections, .tags)))}
type ExprStrategy struct {
	// Compiled program cache
	cache   map[string]*vm.Program
	cacheMu sync.RWMutex

	envOptions []expr.Option
}

// NewExprStrategy creates an Expr strategy with the helper functions registered.
func NewExprStrategy() *ExprStrategy {
	s := &ExprStrategy{
		cache: make(map[string]*vm.Program),
	}

	s.envOptions = []expr.Option{
		expr.AllowUndefinedVariables(),
		expr.Function("lower", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("lower requires 1 argument")
			}
			return strings.ToLower(fmt.Sprint(params[0])), nil
		}),
		expr.Function("upper", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("upper requires 1 argument")
			}
			return strings.ToUpper(fmt.Sprint(params[0])), nil
		}),
		expr.Function("unique", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("unique requires 1 argument")
			}
			return directive.Unique(params[0]), nil
		}),
		expr.Function("flatten", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("flatten requires 1 argument")
			}
			return directive.Flatten(params[0]), nil
		}),
		expr.Function("merge", func(params ...any) (any, error) {
			return directive.Merge(params...), nil
		}),
	}

	return s
}

// Name returns the strategy name.
func (s *ExprStrategy) Name() string { return "expr" }

// Analyze compiles prompt (cached) and runs it against data.
func (s *ExprStrategy) Analyze(ctx context.Context, prompt string, data map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env := make(map[string]any, len(data)+1)
	for k, v := range data {
		env[k] = v
	}
	env["data"] = data

	program, err := s.getOrCompile(strings.TrimSpace(prompt))
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("run expression: %w", err)
	}
	return result, nil
}

// getOrCompile returns a cached compiled program or compiles a new one.
func (s *ExprStrategy) getOrCompile(expression string) (*vm.Program, error) {
	s.cacheMu.RLock()
	program, ok := s.cache[expression]
	s.cacheMu.RUnlock()

	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, s.envOptions...)
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.cache[expression] = program
	s.cacheMu.Unlock()

	return program, nil
}

// CachedPrograms returns the number of compiled expressions held.
func (s *ExprStrategy) CachedPrograms() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return len(s.cache)
}
