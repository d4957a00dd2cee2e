package directive

import (
	"fmt"
	"strings"

	"github.com/artpar/docforge/domain/failure"
)

// Apply evaluates the directives of a single schema node against source, the
// document root. The boolean reports whether a value was produced; a node whose
// paths match nothing yields no value rather than an error.
func (p *Processor) Apply(node map[string]any, source any) (any, bool, error) {
	value, found, err := p.evaluate(node, source, nil, false)
	if err != nil {
		return nil, false, err
	}
	if found && flag(node, DerivedUnique) {
		value = Unique(value)
	}
	return value, found, nil
}

// evaluate runs derivation, extraction, filtering and flattening. own is the value
// found under the property's own key, if any. Deduplication is left to the caller
// so batch mode can apply it after merging.
func (p *Processor) evaluate(node map[string]any, root any, own any, hasOwn bool) (any, bool, error) {
	value, found := own, hasOwn

	if expr, ok := node[DerivedFrom].(string); ok {
		path, err := p.path(expr)
		if err != nil {
			return nil, false, err
		}
		value, found = path.Eval(root)
		if !found && (path.Projects() || declaresType(node, "array")) {
			value, found = []any{}, true
		}
	}

	if !found {
		if expr, ok := node[ExtractFrom].(string); ok {
			path, err := p.path(expr)
			if err != nil {
				return nil, false, err
			}
			value, found = path.Eval(root)
		}
	}

	if expr, ok := node[JMESPathFilter].(string); ok {
		subject := value
		if !found {
			subject = root
		}
		result, err := p.filter(expr, subject)
		if err != nil {
			return nil, false, err
		}
		value, found = result, result != nil
	}

	switch f := node[FlattenArrays].(type) {
	case bool:
		if f && found {
			value = Flatten(value)
		}
	case string:
		if !found {
			path, err := p.path(f)
			if err != nil {
				return nil, false, err
			}
			value, found = path.Eval(root)
		}
		if found {
			value = Flatten(value)
		}
	}

	return value, found, nil
}

func (p *Processor) filter(expr string, subject any) (any, error) {
	q, err := p.query(expr)
	if err != nil {
		return nil, invalidQuery(expr, err.Error())
	}

	data, err := normalize(subject)
	if err != nil {
		return nil, invalidQuery(expr, err.Error())
	}
	if err := p.checkProjections(expr, data); err != nil {
		return nil, err
	}

	result, err := q.Search(data)
	if err != nil {
		return nil, invalidQuery(expr, err.Error())
	}
	return result, nil
}

// checkProjections evaluates the left operand of every top-level filter,
// projection, flatten, index or slice in expr and requires an array. JMESPath
// itself yields null for these on a non-array.
func (p *Processor) checkProjections(expr string, data any) error {
	for _, operand := range projectedOperands(expr) {
		q, err := p.query(operand)
		if err != nil {
			continue
		}
		v, err := q.Search(data)
		if err != nil || v == nil {
			continue
		}
		if _, isArray := v.([]any); !isArray {
			return invalidQuery(expr, fmt.Sprintf("cannot filter %s at %q, expected array", jsonKind(v), operand))
		}
	}
	return nil
}

// projectedOperands returns, for each bracket at nesting depth zero that opens a
// filter, wildcard, flatten, index or slice, the expression its left operand
// evaluates. Operands after a pipe keep the piped prefix; an empty operand is
// the current node.
func projectedOperands(expr string) []string {
	var (
		out        []string
		depth      int
		quote      byte
		chainStart int
		pipe       = -1
	)
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case ']':
			depth--
		case '[':
			if depth == 0 && projects(expr[i+1:]) {
				operand := strings.TrimSpace(expr[chainStart:i])
				if operand == "" {
					operand = "@"
				}
				if pipe >= 0 {
					operand = expr[:pipe] + " | " + operand
				}
				out = append(out, operand)
			}
			depth++
		case '|':
			if depth != 0 {
				break
			}
			if i+1 < len(expr) && expr[i+1] == '|' {
				i++
			} else if i == 0 || expr[i-1] != '|' {
				pipe = i
			}
			chainStart = i + 1
		case '&', '!', '<', '>', '=', ',':
			if depth == 0 {
				chainStart = i + 1
			}
		}
	}
	return out
}

// projects reports whether the text after "[" makes the bracket apply to an
// array rather than build a multi-select list.
func projects(rest string) bool {
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return false
	}
	switch c := rest[0]; {
	case c == '?' || c == '*' || c == ']' || c == '-' || c == ':':
		return true
	case c >= '0' && c <= '9':
		return true
	}
	return false
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}

func invalidQuery(expr, reason string) error {
	return &failure.Error{
		Kind:           failure.KindInvalidFormat,
		Input:          expr,
		ExpectedFormat: "JMESPath expression",
		Message:        reason,
	}
}

func declaresType(node map[string]any, want string) bool {
	switch t := node["type"].(type) {
	case string:
		return t == want
	case []any:
		for _, v := range t {
			if v == want {
				return true
			}
		}
	}
	return false
}
