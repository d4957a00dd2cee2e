package directive

import (
	"encoding/json"
	"fmt"
)

// Flatten recursively flattens nested arrays into a single-level array, depth-first
// and left to right. Non-array values are returned unchanged.
func Flatten(v any) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, 0, len(arr))
	return flattenInto(out, arr)
}

func flattenInto(out, arr []any) []any {
	for _, el := range arr {
		if nested, ok := el.([]any); ok {
			out = flattenInto(out, nested)
			continue
		}
		out = append(out, el)
	}
	return out
}

// Unique removes repeated values from an array keeping the first occurrence of each.
// Values are compared by their canonical JSON form. Non-array values are returned
// unchanged.
func Unique(v any) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	seen := make(map[string]bool, len(arr))
	out := make([]any, 0, len(arr))
	for _, el := range arr {
		key := canonical(el)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, el)
	}
	return out
}

// Merge concatenates values in order. Arrays contribute their elements, nil is
// skipped and any other value is appended as one element.
func Merge(values ...any) []any {
	out := []any{}
	for _, v := range values {
		switch t := v.(type) {
		case nil:
		case []any:
			out = append(out, t...)
		default:
			out = append(out, t)
		}
	}
	return out
}

func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%#v", v, v)
	}
	return string(b)
}

// normalize converts v to the plain JSON value space (float64 numbers, []any,
// map[string]any) expected by the query engine.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
