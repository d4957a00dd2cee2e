package directive

import (
	"fmt"
	"sort"

	"github.com/artpar/docforge/core/pathexpr"
)

// Process evaluates every property of an object schema against one document.
// Frontmatter keys the schema does not describe are carried over unchanged so the
// mapper can report them.
func (p *Processor) Process(resolved map[string]any, doc Document) (map[string]any, Selection, error) {
	sel := newSelection(resolved)
	v := newViews(doc)

	out, err := p.processObject(resolved, v.frontmatter, v, "", &sel, true)
	if err != nil {
		return nil, Selection{}, err
	}
	p.logger.Debug().
		Int("keys", len(out)).
		Int("item_templates", len(sel.Items)).
		Msg("directives applied")
	return out, sel, nil
}

// ProcessBatch aggregates several documents under one schema.
//
// A property marked x-frontmatter-part with array type collects each document's
// processed frontmatter as one item. A property marked x-merge-arrays concatenates
// the per-document values in input order. Every other property takes the first
// document that yields a value.
func (p *Processor) ProcessBatch(resolved map[string]any, docs []Document) (map[string]any, Selection, error) {
	sel := newSelection(resolved)
	out := make(map[string]any)

	props, _ := pathexpr.AsMap(resolved["properties"])
	for _, name := range sortedKeys(props) {
		node, ok := pathexpr.AsMap(props[name])
		if !ok {
			continue
		}
		if tmpl, ok := node[TemplateItems]; ok {
			sel.Items[name] = tmpl
		}

		var (
			value any
			found bool
			err   error
		)
		switch {
		case flag(node, FrontmatterPart) && declaresType(node, "array"):
			value, err = p.collectParts(node, name, docs, &sel)
			found = true
		case flag(node, MergeArrays):
			value, err = p.mergeAcross(node, name, docs, &sel)
			found = true
		default:
			value, found, err = p.firstAcross(node, name, docs, &sel)
		}
		if err != nil {
			return nil, Selection{}, err
		}
		if !found {
			continue
		}
		if flag(node, DerivedUnique) {
			value = Unique(value)
		}
		out[name] = value
	}

	p.logger.Debug().
		Int("documents", len(docs)).
		Int("keys", len(out)).
		Msg("batch directives applied")
	return out, sel, nil
}

func (p *Processor) collectParts(node map[string]any, name string, docs []Document, sel *Selection) ([]any, error) {
	items, _ := pathexpr.AsMap(node["items"])
	if items == nil {
		items = map[string]any{}
	}

	parts := make([]any, 0, len(docs))
	for i, doc := range docs {
		item, inner, err := p.Process(items, doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %s: %w", i, name, err)
		}
		for path, tmpl := range inner.Items {
			sel.Items[name+"[]."+path] = tmpl
		}
		parts = append(parts, item)
	}
	return parts, nil
}

func (p *Processor) mergeAcross(node map[string]any, name string, docs []Document, sel *Selection) ([]any, error) {
	parts := make([]any, 0, len(docs))
	for i, doc := range docs {
		v := newViews(doc)
		root := v.root(node)
		own, hasOwn := root[name]

		value, found, err := p.evaluate(node, root, own, hasOwn)
		if err == nil && found {
			value, err = p.descend(node, value, v, name, sel)
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %s: %w", i, name, err)
		}
		if found {
			parts = append(parts, value)
		}
	}
	return Merge(parts...), nil
}

func (p *Processor) firstAcross(node map[string]any, name string, docs []Document, sel *Selection) (any, bool, error) {
	for i, doc := range docs {
		v := newViews(doc)
		root := v.root(node)
		own, hasOwn := root[name]

		value, found, err := p.evaluate(node, root, own, hasOwn)
		if err == nil && found {
			value, err = p.descend(node, value, v, name, sel)
		}
		if err != nil {
			return nil, false, fmt.Errorf("document %d: %s: %w", i, name, err)
		}
		if found {
			return value, true, nil
		}
	}
	return nil, false, nil
}

func (p *Processor) processObject(schemaNode, scope map[string]any, v views, prefix string, sel *Selection, top bool) (map[string]any, error) {
	out := make(map[string]any, len(scope))
	for k, val := range scope {
		out[k] = val
	}

	props, _ := pathexpr.AsMap(schemaNode["properties"])
	for _, name := range sortedKeys(props) {
		node, ok := pathexpr.AsMap(props[name])
		if !ok {
			continue
		}
		path := joinPath(prefix, name)

		lookup := scope
		if top {
			lookup = v.root(node)
		}
		own, hasOwn := lookup[name]

		value, found, err := p.evaluate(node, v.root(node), own, hasOwn)
		if err == nil && found {
			if flag(node, DerivedUnique) {
				value = Unique(value)
			}
			value, err = p.descend(node, value, v, path, sel)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		if tmpl, ok := node[TemplateItems]; ok {
			sel.Items[path] = tmpl
		}
		if found {
			out[name] = value
		} else {
			delete(out, name)
		}
	}
	return out, nil
}

// descend applies nested object and array-item schemas to an evaluated value.
func (p *Processor) descend(node map[string]any, value any, v views, path string, sel *Selection) (any, error) {
	if _, hasProps := node["properties"]; hasProps {
		if m, ok := pathexpr.AsMap(value); ok {
			return p.processObject(node, m, v, path, sel, false)
		}
	}

	items, ok := pathexpr.AsMap(node["items"])
	if !ok {
		return value, nil
	}
	if _, hasProps := items["properties"]; !hasProps {
		return value, nil
	}
	arr, ok := value.([]any)
	if !ok {
		return value, nil
	}

	out := make([]any, len(arr))
	for i, el := range arr {
		m, isObject := pathexpr.AsMap(el)
		if !isObject {
			out[i] = el
			continue
		}
		processed, err := p.processObject(items, m, v, path+"[]", sel, false)
		if err != nil {
			return nil, err
		}
		out[i] = processed
	}
	return out, nil
}

// views are the two lookup roots of a document: frontmatter alone, and frontmatter
// with the body visible under BodyKey.
type views struct {
	full        map[string]any
	frontmatter map[string]any
}

func newViews(doc Document) views {
	fm := doc.Frontmatter
	if fm == nil {
		fm = map[string]any{}
	}
	full := fm
	if _, taken := fm[BodyKey]; !taken && doc.Body != "" {
		full = make(map[string]any, len(fm)+1)
		for k, val := range fm {
			full[k] = val
		}
		full[BodyKey] = doc.Body
	}
	return views{full: full, frontmatter: fm}
}

func (v views) root(node map[string]any) map[string]any {
	if flag(node, FrontmatterPart) {
		return v.frontmatter
	}
	return v.full
}

func newSelection(resolved map[string]any) Selection {
	return Selection{
		Document: resolved[Template],
		Items:    make(map[string]any),
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

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
