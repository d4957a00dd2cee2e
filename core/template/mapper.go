package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/docforge/core/pathexpr"
	"github.com/artpar/docforge/core/schema"
	"github.com/artpar/docforge/domain/failure"
)

// ArrayFormat controls how {path[]} expansions render inside text.
type ArrayFormat string

const (
	ArrayCSV  ArrayFormat = "csv"
	ArrayJSON ArrayFormat = "json"
)

// ParseArrayFormat validates an array format name. Empty means csv.
func ParseArrayFormat(name string) (ArrayFormat, error) {
	switch ArrayFormat(strings.ToLower(strings.TrimSpace(name))) {
	case "", ArrayCSV:
		return ArrayCSV, nil
	case ArrayJSON:
		return ArrayJSON, nil
	}
	return "", failure.InvalidFormat(name, "csv|json")
}

const pathChars = `[A-Za-z0-9_$-]+(?:\[[0-9*-]*\])*(?:\.[A-Za-z0-9_$-]+(?:\[[0-9*-]*\])*)*`

var (
	placeholderPattern = regexp.MustCompile(`\{(` + pathChars + `)\}`)
	handlebarsPattern  = regexp.MustCompile(`\{\{\s*(` + pathChars + `)\s*\}\}`)
)

// Match is one data path bound during mapping.
type Match struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// MappedData is the result of mapping. All lists are non-nil.
type MappedData struct {
	Matches             []Match        `json:"matches"`
	MissingRequiredKeys []string       `json:"missingRequiredKeys"`
	UnmatchedKeys       []string       `json:"unmatchedKeys"`
	SchemaCompliantData map[string]any `json:"schemaCompliantData"`

	// Output is the filled template: a string for text templates, an object
	// otherwise.
	Output any `json:"output"`

	// Unresolved lists placeholder paths with no value, in order of first use.
	Unresolved []string `json:"unresolved"`
}

// Mapper binds data to templates.
type Mapper struct {
	arrayFormat ArrayFormat
}

// NewMapper creates a mapper. An empty array format means csv.
func NewMapper(arrayFormat ArrayFormat) *Mapper {
	if arrayFormat == "" {
		arrayFormat = ArrayCSV
	}
	return &Mapper{arrayFormat: arrayFormat}
}

// Map fills tmpl from data. props is the expanded schema and may be empty. Map
// never fails: unresolved placeholders stay in the output verbatim and are listed
// in the result.
func (m *Mapper) Map(data map[string]any, tmpl TemplateFormat, props []schema.ExpandedProperty) MappedData {
	return m.MapItems(data, tmpl, nil, props)
}

// MapItems is Map with per-path item templates. An item template keyed by a
// property path renders each element of that array instead of ArrayFormat.
func (m *Mapper) MapItems(data map[string]any, tmpl TemplateFormat, items map[string]any, props []schema.ExpandedProperty) MappedData {
	if data == nil {
		data = map[string]any{}
	}

	b := newBinding(m, tmpl.Format, data, items)
	for _, p := range props {
		if v, ok := lookup(data, p.Path); ok {
			b.match(p.Path, v)
		}
	}

	var output any
	switch t := tmpl.Template.(type) {
	case string:
		output = b.fillString(t)
	case map[string]any:
		output = b.fillObject(t)
	}

	return MappedData{
		Matches:             b.matches,
		MissingRequiredKeys: missingRequired(data, props, b.matched),
		UnmatchedKeys:       unmatched(data, props),
		SchemaCompliantData: prune(data, props),
		Output:              output,
		Unresolved:          b.unresolved,
	}
}

// Placeholders returns the distinct placeholder paths of a text template.
func Placeholders(tmpl TemplateFormat) []string {
	s, ok := tmpl.Template.(string)
	if !ok {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, sub := range patternFor(tmpl.Format).FindAllStringSubmatch(s, -1) {
		if !seen[sub[1]] {
			seen[sub[1]] = true
			out = append(out, sub[1])
		}
	}
	return out
}

func patternFor(f Format) *regexp.Regexp {
	if f == FormatHandlebars {
		return handlebarsPattern
	}
	return placeholderPattern
}

type binding struct {
	mapper  *Mapper
	pattern *regexp.Regexp
	data    map[string]any
	items   map[string]any

	matches    []Match
	matched    map[string]bool
	unresolved []string
	missing    map[string]bool
}

func newBinding(m *Mapper, f Format, data, items map[string]any) *binding {
	return &binding{
		mapper:     m,
		pattern:    patternFor(f),
		data:       data,
		items:      items,
		matches:    []Match{},
		matched:    make(map[string]bool),
		unresolved: []string{},
		missing:    make(map[string]bool),
	}
}

func (b *binding) match(path string, v any) {
	if b.matched[path] {
		return
	}
	b.matched[path] = true
	b.matches = append(b.matches, Match{Path: path, Value: v})
}

func (b *binding) resolve(path string) (any, bool) {
	v, ok := lookup(b.data, path)
	if !ok {
		if !b.missing[path] {
			b.missing[path] = true
			b.unresolved = append(b.unresolved, path)
		}
		return nil, false
	}
	b.match(path, v)
	return v, true
}

func (b *binding) fillString(s string) string {
	return b.pattern.ReplaceAllStringFunc(s, func(placeholder string) string {
		path := b.pattern.FindStringSubmatch(placeholder)[1]
		v, ok := b.resolve(path)
		if !ok {
			return placeholder
		}
		return b.render(path, v)
	})
}

func (b *binding) fillObject(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = b.fillValue(v)
	}
	return out
}

func (b *binding) fillValue(v any) any {
	switch t := v.(type) {
	case string:
		loc := b.pattern.FindStringSubmatchIndex(t)
		if loc == nil || loc[0] != 0 || loc[1] != len(t) {
			return b.fillString(t)
		}
		path := t[loc[2]:loc[3]]
		raw, ok := b.resolve(path)
		if !ok {
			return t
		}
		if list, isList := raw.([]any); isList {
			if itemTmpl, has := b.itemTemplate(path); has {
				return b.fillItems(list, itemTmpl)
			}
		}
		return raw
	case map[string]any:
		return b.fillObject(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = b.fillValue(el)
		}
		return out
	default:
		return v
	}
}

func (b *binding) render(path string, v any) string {
	switch t := v.(type) {
	case []any:
		if itemTmpl, has := b.itemTemplate(path); has {
			rendered := b.fillItems(t, itemTmpl)
			parts := make([]string, len(rendered))
			for i, r := range rendered {
				parts[i] = textOf(r)
			}
			return strings.Join(parts, "\n")
		}
		if b.mapper.arrayFormat == ArrayJSON {
			return compactJSON(t)
		}
		parts := make([]string, len(t))
		for i, el := range t {
			parts[i] = textOf(el)
		}
		return strings.Join(parts, ", ")
	default:
		return textOf(v)
	}
}

func (b *binding) itemTemplate(path string) (any, bool) {
	if len(b.items) == 0 {
		return nil, false
	}
	t, ok := b.items[strings.TrimSuffix(path, "[]")]
	return t, ok
}

// fillItems renders itemTmpl once per element. Object elements are the data of
// their own rendering; scalars are visible as {value}. {index} is the zero-based
// position in both cases.
func (b *binding) fillItems(list []any, itemTmpl any) []any {
	out := make([]any, len(list))
	for i, el := range list {
		scope := map[string]any{"value": el, "index": i}
		if m, ok := pathexpr.AsMap(el); ok {
			scope = make(map[string]any, len(m)+1)
			for k, v := range m {
				scope[k] = v
			}
			if _, taken := scope["index"]; !taken {
				scope["index"] = i
			}
		}

		child := &binding{
			mapper:     b.mapper,
			pattern:    b.pattern,
			data:       scope,
			matches:    []Match{},
			matched:    make(map[string]bool),
			unresolved: []string{},
			missing:    make(map[string]bool),
		}
		switch t := itemTmpl.(type) {
		case string:
			out[i] = child.fillString(t)
		case map[string]any:
			out[i] = child.fillObject(t)
		default:
			out[i] = el
		}
	}
	return out
}

func lookup(data map[string]any, path string) (any, bool) {
	p, err := pathexpr.Parse(path)
	if err != nil {
		return nil, false
	}
	v, ok := p.Eval(data)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func missingRequired(data map[string]any, props []schema.ExpandedProperty, matched map[string]bool) []string {
	out := []string{}
	for _, p := range props {
		if !p.Required || matched[p.Path] {
			continue
		}
		if _, ok := lookup(data, p.Path); ok {
			continue
		}
		if parentExists(data, p.Path) {
			out = append(out, p.Path)
		}
	}
	return out
}

func parentExists(data map[string]any, path string) bool {
	i := strings.LastIndex(path, ".")
	if i < 0 {
		return true
	}
	parent := path[:i]
	v, ok := lookup(data, parent)
	if !ok {
		return false
	}
	if strings.HasSuffix(parent, "[]") {
		list, _ := v.([]any)
		return len(list) > 0
	}
	return true
}

func knownPaths(props []schema.ExpandedProperty) map[string]bool {
	known := make(map[string]bool, len(props))
	for _, p := range props {
		known[p.Path] = true
	}
	return known
}

func hasChildren(known map[string]bool, prefix string) bool {
	for k := range known {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

func unmatched(data map[string]any, props []schema.ExpandedProperty) []string {
	out := []string{}
	if len(props) == 0 {
		return out
	}
	known := knownPaths(props)
	seen := make(map[string]bool)

	var walk func(m map[string]any, prefix string)
	walk = func(m map[string]any, prefix string) {
		for _, k := range sortedKeys(m) {
			path := joinPath(prefix, k)
			if !known[path] {
				if !seen[path] {
					seen[path] = true
					out = append(out, path)
				}
				continue
			}
			switch v := m[k].(type) {
			case map[string]any:
				if hasChildren(known, path+".") {
					walk(v, path)
				}
			case []any:
				if hasChildren(known, path+"[].") {
					for _, el := range v {
						if em, ok := el.(map[string]any); ok {
							walk(em, path+"[]")
						}
					}
				}
			}
		}
	}
	walk(data, "")
	return out
}

// prune keeps only data covered by the schema paths. Without a schema the whole
// data is kept.
func prune(data map[string]any, props []schema.ExpandedProperty) map[string]any {
	if len(props) == 0 {
		out := make(map[string]any, len(data))
		for k, v := range data {
			out[k] = v
		}
		return out
	}
	return pruneObject(data, "", knownPaths(props))
}

func pruneObject(m map[string]any, prefix string, known map[string]bool) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		path := joinPath(prefix, k)
		if !known[path] {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			if hasChildren(known, path+".") {
				out[k] = pruneObject(t, path, known)
				continue
			}
		case []any:
			if hasChildren(known, path+"[].") {
				items := make([]any, len(t))
				for i, el := range t {
					if em, ok := el.(map[string]any); ok {
						items[i] = pruneObject(em, path+"[]", known)
					} else {
						items[i] = el
					}
				}
				out[k] = items
				continue
			}
		}
		out[k] = v
	}
	return out
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		return compactJSON(t)
	default:
		return fmt.Sprint(t)
	}
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
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
