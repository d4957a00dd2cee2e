/*
Package schema loads JSON-Schema-like documents, resolves their internal $ref
pointers and flattens them into a list of expanded properties.

# Schema Documents

A schema is an object (JSON or YAML) describing the expected frontmatter, with
optional x-* directives evaluated by package directive:

	{
	  "type": "object",
	  "required": ["title"],
	  "properties": {
	    "title":    {"type": "string"},
	    "tags":     {"type": "array", "items": {"type": "string"}, "x-derived-unique": true},
	    "author":   {"$ref": "#/definitions/Person"}
	  },
	  "definitions": {
	    "Person": {"type": "object", "properties": {"name": {"type": "string"}}}
	  }
	}

# Resolution

Resolve replaces every local $ref ("#/definitions/X", "#/$defs/X", any JSON pointer
into the document) with its target. A pointer that is already being resolved higher
up the stack is a cycle and fails with CircularReference before it is expanded.
Resolved pointers are memoized per Definition.

# Expansion

Expand flattens a resolved tree into (path, required, type) entries:

	title          required  string
	tags           optional  array
	tags[]         optional  string
	author         optional  object
	author.name    optional  string
*/
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/docforge/domain/failure"
	"gopkg.in/yaml.v3"
)

// Definition is a validated schema document. It is never mutated after construction;
// only its reference cache grows.
type Definition struct {
	root map[string]any

	mu    sync.Mutex
	cache map[string]any
}

// New validates raw as a schema object. nil, arrays and primitives are rejected.
func New(raw any) (*Definition, error) {
	root, ok := asObject(raw)
	if !ok {
		return nil, failure.InvalidFormat(describe(raw), "schema object")
	}

	d := &Definition{
		root:  root,
		cache: make(map[string]any),
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Parse decodes a schema from JSON or YAML bytes.
func Parse(data []byte) (*Definition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, failure.EmptyInput("schema")
	}

	var raw any
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, failure.ParseError(string(trimmed), err)
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &raw); err != nil {
			return nil, failure.ParseError(string(trimmed), err)
		}
	}

	return New(raw)
}

// ParseFile reads and parses a schema file.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return Parse(data)
}

// Root returns the unresolved document.
func (d *Definition) Root() map[string]any {
	return d.root
}

var validTypes = map[string]bool{
	"string": true, "number": true, "integer": true, "boolean": true,
	"object": true, "array": true, "null": true,
}

// Validate checks the structural keywords the resolver and expander rely on.
func (d *Definition) Validate() error {
	var errs []string
	validateNode(d.root, "#", &errs)
	if len(errs) > 0 {
		return &failure.Error{
			Kind:           failure.KindInvalidFormat,
			Input:          errs[0],
			ExpectedFormat: "JSON schema",
			Message:        strings.Join(errs, "; "),
		}
	}
	return nil
}

func validateNode(node map[string]any, at string, errs *[]string) {
	if t, ok := node["type"]; ok {
		switch tv := t.(type) {
		case string:
			if !validTypes[tv] {
				*errs = append(*errs, fmt.Sprintf("%s/type: unknown type %q", at, tv))
			}
		case []any:
			for _, item := range tv {
				s, ok := item.(string)
				if !ok || !validTypes[s] {
					*errs = append(*errs, fmt.Sprintf("%s/type: unknown type %v", at, item))
				}
			}
		default:
			*errs = append(*errs, fmt.Sprintf("%s/type: must be a string or list", at))
		}
	}

	if ref, ok := node["$ref"]; ok {
		if _, isString := ref.(string); !isString {
			*errs = append(*errs, fmt.Sprintf("%s/$ref: must be a string", at))
		}
	}

	if req, ok := node["required"]; ok {
		list, isList := req.([]any)
		if !isList {
			*errs = append(*errs, fmt.Sprintf("%s/required: must be a list", at))
		}
		for _, r := range list {
			if _, isString := r.(string); !isString {
				*errs = append(*errs, fmt.Sprintf("%s/required: entries must be strings", at))
				break
			}
		}
	}

	if props, ok := node["properties"]; ok {
		m, isObject := asObject(props)
		if !isObject {
			*errs = append(*errs, fmt.Sprintf("%s/properties: must be an object", at))
		}
		for _, name := range sortedKeys(m) {
			child, isObject := asObject(m[name])
			if !isObject {
				*errs = append(*errs, fmt.Sprintf("%s/properties/%s: must be an object", at, name))
				continue
			}
			validateNode(child, at+"/properties/"+name, errs)
		}
	}

	if items, ok := node["items"]; ok {
		child, isObject := asObject(items)
		if !isObject {
			*errs = append(*errs, fmt.Sprintf("%s/items: must be an object", at))
		} else {
			validateNode(child, at+"/items", errs)
		}
	}

	for _, key := range []string{"definitions", "$defs"} {
		defs, ok := node[key]
		if !ok {
			continue
		}
		m, isObject := asObject(defs)
		if !isObject {
			*errs = append(*errs, fmt.Sprintf("%s/%s: must be an object", at, key))
			continue
		}
		for _, name := range sortedKeys(m) {
			if child, isObject := asObject(m[name]); isObject {
				validateNode(child, at+"/"+key+"/"+name, errs)
			}
		}
	}
}

// asObject accepts both map[string]any and the map[any]any some YAML decoders produce.
func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		if m == nil {
			return nil, false
		}
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
