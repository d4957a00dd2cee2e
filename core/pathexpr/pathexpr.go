// Package pathexpr parses and evaluates the dotted path expressions used by schema
// directives and template placeholders.
//
// Supported forms:
//
//	title            field
//	meta.author      nested field
//	items[0]         array index (negative counts from the end)
//	items[].name     for each element of items take name
//	items[*].name    same as items[]
//
// Every "[]" projects the remaining steps over the elements of an array. Elements for
// which the remainder has no value are skipped, and nested projections are flattened
// into a single list.
package pathexpr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/docforge/domain/failure"
)

// StepKind identifies one step of a parsed path.
type StepKind int

const (
	Field StepKind = iota
	Index
	Each
)

func (k StepKind) String() string {
	switch k {
	case Field:
		return "field"
	case Index:
		return "index"
	case Each:
		return "each"
	default:
		return "unknown"
	}
}

// Step is one node of the path AST.
type Step struct {
	Kind  StepKind
	Name  string
	Index int
}

// Path is a parsed expression.
type Path struct {
	raw   string
	Steps []Step
}

// String returns the source text of the expression.
func (p Path) String() string { return p.raw }

// Projects reports whether evaluation produces a list via "[]".
func (p Path) Projects() bool {
	for _, s := range p.Steps {
		if s.Kind == Each {
			return true
		}
	}
	return false
}

// Parse parses expr. A leading "$." or "." is accepted and ignored.
func Parse(expr string) (Path, error) {
	src := strings.TrimSpace(expr)
	src = strings.TrimPrefix(src, "$")
	src = strings.TrimPrefix(src, ".")
	if src == "" {
		return Path{}, failure.EmptyInput("path")
	}

	var steps []Step
	for i, part := range strings.Split(src, ".") {
		if part == "" {
			return Path{}, invalid(expr, "empty segment")
		}

		name := part
		brackets := ""
		if open := strings.IndexByte(part, '['); open >= 0 {
			name, brackets = part[:open], part[open:]
		}
		if name == "" && i > 0 {
			return Path{}, invalid(expr, "bracket without field name")
		}
		if name != "" {
			if !isName(name) {
				return Path{}, invalid(expr, fmt.Sprintf("invalid field name %q", name))
			}
			steps = append(steps, Step{Kind: Field, Name: name})
		}

		for brackets != "" {
			end := strings.IndexByte(brackets, ']')
			if brackets[0] != '[' || end < 0 {
				return Path{}, invalid(expr, "unbalanced brackets")
			}
			inner := brackets[1:end]
			brackets = brackets[end+1:]

			switch inner {
			case "", "*":
				steps = append(steps, Step{Kind: Each})
			default:
				n, err := strconv.Atoi(inner)
				if err != nil {
					return Path{}, invalid(expr, fmt.Sprintf("invalid index %q", inner))
				}
				steps = append(steps, Step{Kind: Index, Index: n})
			}
		}
	}

	return Path{raw: expr, Steps: steps}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(expr string) Path {
	p, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Eval evaluates p against root. The boolean is false when the path does not exist.
func (p Path) Eval(root any) (any, bool) {
	return eval(p.Steps, root)
}

// Lookup parses and evaluates expr in one call.
func Lookup(root any, expr string) (any, bool, error) {
	p, err := Parse(expr)
	if err != nil {
		return nil, false, err
	}
	v, ok := p.Eval(root)
	return v, ok, nil
}

func eval(steps []Step, cur any) (any, bool) {
	if len(steps) == 0 {
		return cur, true
	}
	step, rest := steps[0], steps[1:]

	switch step.Kind {
	case Field:
		m, ok := AsMap(cur)
		if !ok {
			return nil, false
		}
		v, ok := m[step.Name]
		if !ok {
			return nil, false
		}
		return eval(rest, v)

	case Index:
		arr, ok := cur.([]any)
		if !ok {
			return nil, false
		}
		i := step.Index
		if i < 0 {
			i += len(arr)
		}
		if i < 0 || i >= len(arr) {
			return nil, false
		}
		return eval(rest, arr[i])

	case Each:
		arr, ok := cur.([]any)
		if !ok {
			return nil, false
		}
		nested := Path{Steps: rest}.Projects()
		out := make([]any, 0, len(arr))
		for _, el := range arr {
			v, ok := eval(rest, el)
			if !ok || v == nil {
				continue
			}
			if sub, isList := v.([]any); isList && nested {
				out = append(out, sub...)
				continue
			}
			out = append(out, v)
		}
		return out, true
	}
	return nil, false
}

// AsMap accepts map[string]any and the map[any]any form some YAML decoders produce.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, m != nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func isName(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '$':
		default:
			return false
		}
	}
	return s != ""
}

func invalid(expr, reason string) error {
	return &failure.Error{
		Kind:           failure.KindInvalidFormat,
		Input:          expr,
		ExpectedFormat: "path expression",
		Message:        reason,
	}
}
