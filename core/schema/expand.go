package schema

import (
	"sort"
	"strings"
)

// ExpandedProperty is one flattened leaf of a resolved schema.
// Path uses dot notation with "[]" marking array items, e.g. "metadata.tags[]".
type ExpandedProperty struct {
	Path     string `json:"path"`
	Required bool   `json:"required"`
	Type     string `json:"type"`
}

// Expand flattens a resolved schema. Anything that is not an object schema expands
// to an empty list.
func Expand(node any) []ExpandedProperty {
	out := []ExpandedProperty{}
	root, ok := asObject(node)
	if !ok {
		return out
	}
	expandObject(root, "", &out)
	return out
}

func expandObject(node map[string]any, prefix string, out *[]ExpandedProperty) {
	props, _ := asObject(node["properties"])
	required := requiredSet(node)

	names := make([]string, 0, len(props)+len(required))
	for name := range props {
		names = append(names, name)
	}
	for name := range required {
		if _, declared := props[name]; !declared {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := joinPath(prefix, name)
		child, _ := asObject(props[name])

		*out = append(*out, ExpandedProperty{
			Path:     path,
			Required: required[name],
			Type:     typeOf(child),
		})
		expandChild(child, path, out)
	}
}

func expandChild(child map[string]any, path string, out *[]ExpandedProperty) {
	if child == nil {
		return
	}
	if _, hasProps := child["properties"]; hasProps {
		expandObject(child, path, out)
	}

	items, ok := asObject(child["items"])
	if !ok {
		return
	}
	itemPath := path + "[]"
	*out = append(*out, ExpandedProperty{
		Path: itemPath,
		Type: typeOf(items),
	})
	expandChild(items, itemPath, out)
}

func requiredSet(node map[string]any) map[string]bool {
	set := make(map[string]bool)
	list, _ := node["required"].([]any)
	for _, r := range list {
		if s, ok := r.(string); ok {
			set[s] = true
		}
	}
	return set
}

func typeOf(node map[string]any) string {
	if node == nil {
		return "any"
	}
	switch t := node["type"].(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "|")
	}
	if _, ok := node["properties"]; ok {
		return "object"
	}
	if _, ok := node["items"]; ok {
		return "array"
	}
	return "any"
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
