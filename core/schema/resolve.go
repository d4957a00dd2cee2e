package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/docforge/domain/failure"
)

// Resolved is a fully dereferenced schema together with its expansion.
type Resolved struct {
	Root       map[string]any
	Properties []ExpandedProperty
}

// Required returns the expanded properties marked required.
func (r *Resolved) Required() []ExpandedProperty {
	var out []ExpandedProperty
	for _, p := range r.Properties {
		if p.Required {
			out = append(out, p)
		}
	}
	return out
}

// Resolve dereferences every $ref reachable from the root.
// Subtrees under "definitions" and "$defs" are kept as-is; they are only resolved
// through references.
func (d *Definition) Resolve() (*Resolved, error) {
	r := resolver{def: d, active: make(map[string]bool)}

	out := make(map[string]any, len(d.root))
	if ref, ok := d.root["$ref"].(string); ok {
		siblings := make(map[string]any, len(d.root))
		for k, v := range d.root {
			if k != "definitions" && k != "$defs" {
				siblings[k] = v
			}
		}
		node, err := r.resolveRef(ref, siblings)
		if err != nil {
			return nil, err
		}
		m, isObject := asObject(node)
		if !isObject {
			return nil, failure.RefResolutionFailed(ref, fmt.Errorf("root reference does not point to an object"))
		}
		out = m
	} else {
		for _, k := range sortedKeys(d.root) {
			if k == "definitions" || k == "$defs" {
				out[k] = d.root[k]
				continue
			}
			v, err := r.resolve(d.root[k])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
	}

	return &Resolved{
		Root:       out,
		Properties: Expand(out),
	}, nil
}

type resolver struct {
	def *Definition

	// active holds pointers currently being resolved; seeing one again is a cycle.
	active map[string]bool
}

func (r *resolver) resolve(node any) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		if ref, ok := n["$ref"].(string); ok {
			return r.resolveRef(ref, n)
		}
		out := make(map[string]any, len(n))
		for _, k := range sortedKeys(n) {
			v, err := r.resolve(n[k])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case map[any]any:
		m, _ := asObject(n)
		return r.resolve(m)
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			v, err := r.resolve(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return node, nil
	}
}

// resolveRef resolves ref and overlays the sibling keys of the referencing node.
func (r *resolver) resolveRef(ref string, node map[string]any) (any, error) {
	target, err := r.target(ref)
	if err != nil {
		return nil, err
	}

	if len(node) == 1 {
		return target, nil
	}
	base, isObject := asObject(target)
	if !isObject {
		return target, nil
	}

	merged := make(map[string]any, len(base)+len(node))
	for k, v := range base {
		merged[k] = v
	}
	for _, k := range sortedKeys(node) {
		if k == "$ref" {
			continue
		}
		v, err := r.resolve(node[k])
		if err != nil {
			return nil, err
		}
		merged[k] = v
	}
	return merged, nil
}

func (r *resolver) target(ref string) (any, error) {
	if r.active[ref] {
		return nil, failure.CircularReference(ref)
	}
	if cached, ok := r.def.cached(ref); ok {
		return cached, nil
	}

	raw, err := lookupPointer(r.def.root, ref)
	if err != nil {
		return nil, err
	}

	r.active[ref] = true
	resolved, err := r.resolve(raw)
	delete(r.active, ref)
	if err != nil {
		return nil, err
	}

	r.def.store(ref, resolved)
	return resolved, nil
}

func (d *Definition) cached(ref string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.cache[ref]
	return v, ok
}

func (d *Definition) store(ref string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[ref] = v
}

// CachedRefs returns how many pointers have been memoized.
func (d *Definition) CachedRefs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cache)
}

// lookupPointer follows a local JSON pointer ("#", "#/definitions/X") from root.
func lookupPointer(root map[string]any, ref string) (any, error) {
	if !strings.HasPrefix(ref, "#") {
		return nil, failure.RefResolutionFailed(ref, fmt.Errorf("only local references are supported"))
	}

	pointer := strings.TrimPrefix(ref, "#")
	if pointer == "" {
		return root, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, failure.RefResolutionFailed(ref, fmt.Errorf("malformed pointer"))
	}

	var cur any = root
	for _, raw := range strings.Split(pointer[1:], "/") {
		token := strings.ReplaceAll(strings.ReplaceAll(raw, "~1", "/"), "~0", "~")

		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[token]
			if !ok {
				return nil, failure.RefResolutionFailed(ref, fmt.Errorf("segment %q not found", token))
			}
			cur = next
		case map[any]any:
			m, _ := asObject(node)
			next, ok := m[token]
			if !ok {
				return nil, failure.RefResolutionFailed(ref, fmt.Errorf("segment %q not found", token))
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, failure.RefResolutionFailed(ref, fmt.Errorf("index %q out of range", token))
			}
			cur = node[idx]
		default:
			return nil, failure.RefResolutionFailed(ref, fmt.Errorf("cannot descend into %T at %q", cur, token))
		}
	}
	return cur, nil
}
