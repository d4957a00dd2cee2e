package template

import (
	"reflect"
	"strings"
	"testing"

	"github.com/artpar/docforge/core/schema"
	"github.com/artpar/docforge/domain/failure"
)

func textTemplate(t *testing.T, format, src string) TemplateFormat {
	t.Helper()
	tf, err := NewTemplateFormat(format, src)
	if err != nil {
		t.Fatalf("NewTemplateFormat() error = %v", err)
	}
	return tf
}

func expanded(t *testing.T, src string) []schema.ExpandedProperty {
	t.Helper()
	d, err := schema.Parse([]byte(src))
	if err != nil {
		t.Fatalf("schema.Parse() error = %v", err)
	}
	r, err := d.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return r.Properties
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"json", "YAML", "yml", " xml ", "handlebars", "custom"} {
		if _, err := ParseFormat(name); err != nil {
			t.Errorf("ParseFormat(%q) error = %v", name, err)
		}
	}
	if _, err := ParseFormat("toml"); !failure.Is(err, failure.KindInvalidFormat) {
		t.Errorf("ParseFormat(toml) error = %v, want InvalidFormat", err)
	}
	if _, err := ParseFormat(""); !failure.Is(err, failure.KindEmptyInput) {
		t.Errorf("ParseFormat(\"\") error = %v, want EmptyInput", err)
	}
}

func TestNewTemplateFormat(t *testing.T) {
	if _, err := NewTemplateFormat("json", map[string]any{"a": "{a}"}); err != nil {
		t.Errorf("object template error = %v", err)
	}
	if _, err := NewTemplateFormat("json", nil); !failure.Is(err, failure.KindInvalidFormat) {
		t.Errorf("nil template error = %v, want InvalidFormat", err)
	}
	if _, err := NewTemplateFormat("json", []any{"a"}); !failure.Is(err, failure.KindInvalidFormat) {
		t.Errorf("array template error = %v, want InvalidFormat", err)
	}
	if _, err := NewTemplateFormat("json", "  "); !failure.Is(err, failure.KindEmptyInput) {
		t.Errorf("blank template error = %v, want EmptyInput", err)
	}
}

func TestParseTemplate(t *testing.T) {
	tf, err := ParseTemplate("json", []byte(`{"name": "{title}", "n": 1}`))
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}
	if tf.IsText() {
		t.Error("json object template should decode to an object")
	}

	tf, err = ParseTemplate("yaml", []byte("title: {title}\n"))
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}
	if !tf.IsText() {
		t.Error("yaml template should stay text")
	}
}

func TestDecodeObject(t *testing.T) {
	tf, err := DecodeObject("yaml", []byte("doc:\n  title: \"{title}\"\n"))
	if err != nil {
		t.Fatalf("DecodeObject() error = %v", err)
	}
	if tf.IsText() {
		t.Error("DecodeObject should produce an object template")
	}
	if _, err := DecodeObject("yaml", []byte("")); !failure.Is(err, failure.KindInvalidFormat) {
		t.Errorf("DecodeObject(empty) error = %v, want InvalidFormat", err)
	}
}

func TestMap_Scenario(t *testing.T) {
	props := expanded(t, `{"type":"object","required":["title","category"],
		"properties":{"title":{"type":"string"},"category":{"type":"string"}}}`)
	tmpl := textTemplate(t, "custom", "# {title}\nCategory: {category}")

	got := NewMapper(ArrayCSV).Map(map[string]any{"title": "Sample Document", "category": "test"}, tmpl, props)

	if got.Output != "# Sample Document\nCategory: test" {
		t.Errorf("Output = %q", got.Output)
	}
	if len(got.MissingRequiredKeys) != 0 || len(got.UnmatchedKeys) != 0 || len(got.Unresolved) != 0 {
		t.Errorf("unexpected diagnostics: %+v", got)
	}
	if len(got.Matches) != 2 {
		t.Errorf("Matches = %v", got.Matches)
	}
}

func TestMap_MissingRequired(t *testing.T) {
	props := expanded(t, `{"type":"object","required":["title","category"],
		"properties":{"title":{"type":"string"},"category":{"type":"string"}}}`)
	tmpl := textTemplate(t, "custom", "# {title}\nCategory: {category}")

	got := NewMapper(ArrayCSV).Map(map[string]any{"title": "Sample Document"}, tmpl, props)

	if !reflect.DeepEqual(got.MissingRequiredKeys, []string{"category"}) {
		t.Errorf("MissingRequiredKeys = %v, want [category]", got.MissingRequiredKeys)
	}
	if !reflect.DeepEqual(got.Unresolved, []string{"category"}) {
		t.Errorf("Unresolved = %v, want [category]", got.Unresolved)
	}
	if !strings.Contains(got.Output.(string), "Category: {category}") {
		t.Errorf("unresolved placeholder should stay verbatim: %q", got.Output)
	}
}

func TestMap_Totality(t *testing.T) {
	templates := []TemplateFormat{
		textTemplate(t, "custom", "{a} {b[]} {c.d[0]}"),
		{Format: FormatJSON, Template: map[string]any{"x": "{a}", "y": []any{"{b}"}}},
		{Format: FormatJSON},
	}
	for _, tmpl := range templates {
		for _, data := range []map[string]any{nil, {}} {
			got := NewMapper("").Map(data, tmpl, nil)
			if got.Matches == nil || got.MissingRequiredKeys == nil || got.UnmatchedKeys == nil ||
				got.Unresolved == nil || got.SchemaCompliantData == nil {
				t.Errorf("Map() returned nil lists: %+v", got)
			}
		}
	}
}

func TestMap_ArrayFormats(t *testing.T) {
	data := map[string]any{
		"tags":  []any{"a", "b", 3},
		"items": []any{map[string]any{"name": "x"}, map[string]any{"name": "y"}},
	}
	tmpl := textTemplate(t, "custom", "{tags[]} | {items[].name}")

	csv := NewMapper(ArrayCSV).Map(data, tmpl, nil)
	if csv.Output != "a, b, 3 | x, y" {
		t.Errorf("csv Output = %q", csv.Output)
	}

	js := NewMapper(ArrayJSON).Map(data, tmpl, nil)
	if js.Output != `["a","b",3] | ["x","y"]` {
		t.Errorf("json Output = %q", js.Output)
	}
}

func TestMap_ObjectTemplateKeepsTypes(t *testing.T) {
	tmpl := TemplateFormat{Format: FormatJSON, Template: map[string]any{
		"title": "{title}",
		"count": "{count}",
		"label": "n={count}",
		"tags":  "{tags[]}",
		"meta":  map[string]any{"missing": "{nope}"},
	}}
	data := map[string]any{"title": "T", "count": 4, "tags": []any{"a"}}

	got := NewMapper(ArrayCSV).Map(data, tmpl, nil)
	out := got.Output.(map[string]any)

	if out["count"] != 4 {
		t.Errorf("count = %#v, want 4", out["count"])
	}
	if out["label"] != "n=4" {
		t.Errorf("label = %#v", out["label"])
	}
	if !reflect.DeepEqual(out["tags"], []any{"a"}) {
		t.Errorf("tags = %#v", out["tags"])
	}
	if out["meta"].(map[string]any)["missing"] != "{nope}" {
		t.Errorf("missing = %#v", out["meta"])
	}
	if !reflect.DeepEqual(got.Unresolved, []string{"nope"}) {
		t.Errorf("Unresolved = %v", got.Unresolved)
	}
}

func TestMapItems(t *testing.T) {
	data := map[string]any{
		"commands": []any{
			map[string]any{"name": "build"},
			map[string]any{"name": "test"},
		},
		"tags": []any{"a", "b"},
	}
	items := map[string]any{
		"commands": "- {name} ({index})",
		"tags":     map[string]any{"tag": "{value}"},
	}

	text := NewMapper(ArrayCSV).MapItems(data, textTemplate(t, "custom", "{commands[]}"), items, nil)
	if text.Output != "- build (0)\n- test (1)" {
		t.Errorf("text Output = %q", text.Output)
	}

	obj := NewMapper(ArrayCSV).MapItems(data, TemplateFormat{
		Format:   FormatJSON,
		Template: map[string]any{"tags": "{tags}"},
	}, items, nil)
	want := []any{map[string]any{"tag": "a"}, map[string]any{"tag": "b"}}
	if got := obj.Output.(map[string]any)["tags"]; !reflect.DeepEqual(got, want) {
		t.Errorf("tags = %#v, want %#v", got, want)
	}
}

func TestMap_Handlebars(t *testing.T) {
	tmpl := textTemplate(t, "handlebars", "<h1>{{ title }}</h1>{single}")
	got := NewMapper(ArrayCSV).Map(map[string]any{"title": "Hi", "single": "x"}, tmpl, nil)
	if got.Output != "<h1>Hi</h1>{single}" {
		t.Errorf("Output = %q", got.Output)
	}
}

func TestMap_UnmatchedAndCompliantData(t *testing.T) {
	props := expanded(t, `{"type":"object","required":["meta"],"properties":{
		"title":{"type":"string"},
		"meta":{"type":"object","required":["owner"],"properties":{"owner":{"type":"string"}}},
		"free":{"type":"object"},
		"items":{"type":"array","items":{"type":"object","properties":{"id":{"type":"string"}}}}
	}}`)
	data := map[string]any{
		"title": "T",
		"extra": 1,
		"meta":  map[string]any{"owner": "ann", "stray": true},
		"free":  map[string]any{"anything": 1},
		"items": []any{map[string]any{"id": "1", "x": 1}, map[string]any{"id": "2", "x": 2}},
	}

	got := NewMapper(ArrayCSV).Map(data, textTemplate(t, "custom", "{title}"), props)

	if want := []string{"extra", "items[].x", "meta.stray"}; !reflect.DeepEqual(got.UnmatchedKeys, want) {
		t.Errorf("UnmatchedKeys = %v, want %v", got.UnmatchedKeys, want)
	}
	wantData := map[string]any{
		"title": "T",
		"meta":  map[string]any{"owner": "ann"},
		"free":  map[string]any{"anything": 1},
		"items": []any{map[string]any{"id": "1"}, map[string]any{"id": "2"}},
	}
	if !reflect.DeepEqual(got.SchemaCompliantData, wantData) {
		t.Errorf("SchemaCompliantData = %v, want %v", got.SchemaCompliantData, wantData)
	}
	if len(got.MissingRequiredKeys) != 0 {
		t.Errorf("MissingRequiredKeys = %v", got.MissingRequiredKeys)
	}
}

func TestMap_MissingNestedOnlyWhenParentExists(t *testing.T) {
	props := expanded(t, `{"type":"object","properties":{
		"meta":{"type":"object","required":["owner"],"properties":{"owner":{"type":"string"}}}
	}}`)
	tmpl := textTemplate(t, "custom", "x")

	got := NewMapper(ArrayCSV).Map(map[string]any{}, tmpl, props)
	if len(got.MissingRequiredKeys) != 0 {
		t.Errorf("MissingRequiredKeys = %v, want none when parent is absent", got.MissingRequiredKeys)
	}

	got = NewMapper(ArrayCSV).Map(map[string]any{"meta": map[string]any{}}, tmpl, props)
	if !reflect.DeepEqual(got.MissingRequiredKeys, []string{"meta.owner"}) {
		t.Errorf("MissingRequiredKeys = %v, want [meta.owner]", got.MissingRequiredKeys)
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders(textTemplate(t, "custom", "{a} {b[]} {a} {c[0].d}"))
	if !reflect.DeepEqual(got, []string{"a", "b[]", "c[0].d"}) {
		t.Errorf("Placeholders() = %v", got)
	}
}
