package pathexpr

import (
	"reflect"
	"testing"

	"github.com/artpar/docforge/domain/failure"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr string
		want []Step
	}{
		{"title", []Step{{Kind: Field, Name: "title"}}},
		{"meta.author", []Step{{Kind: Field, Name: "meta"}, {Kind: Field, Name: "author"}}},
		{"items[]", []Step{{Kind: Field, Name: "items"}, {Kind: Each}}},
		{"items[*].id", []Step{{Kind: Field, Name: "items"}, {Kind: Each}, {Kind: Field, Name: "id"}}},
		{"m[1][-1]", []Step{{Kind: Field, Name: "m"}, {Kind: Index, Index: 1}, {Kind: Index, Index: -1}}},
		{"$.a", []Step{{Kind: Field, Name: "a"}}},
		{"[0].x", []Step{{Kind: Index, Index: 0}, {Kind: Field, Name: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !reflect.DeepEqual(p.Steps, tt.want) {
				t.Errorf("Steps = %v, want %v", p.Steps, tt.want)
			}
			if p.String() != tt.expr {
				t.Errorf("String() = %q", p.String())
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse("  "); !failure.Is(err, failure.KindEmptyInput) {
		t.Errorf("Parse(blank) error = %v, want EmptyInput", err)
	}
	for _, expr := range []string{"a..b", "a.[0]", "a[x]", "a[0", "a b", "a.b]"} {
		if _, err := Parse(expr); !failure.Is(err, failure.KindInvalidFormat) {
			t.Errorf("Parse(%q) error = %v, want InvalidFormat", expr, err)
		}
	}
}

func TestEval(t *testing.T) {
	doc := map[string]any{
		"title": "Doc",
		"meta":  map[string]any{"author": map[string]any{"name": "ann"}},
		"items": []any{
			map[string]any{"id": "a", "tags": []any{"x", "y"}},
			map[string]any{"id": "b", "tags": []any{"z"}},
			map[string]any{"name": "no id"},
		},
		"matrix": []any{[]any{1, 2}, []any{3}},
	}

	tests := []struct {
		expr  string
		want  any
		found bool
	}{
		{"title", "Doc", true},
		{"meta.author.name", "ann", true},
		{"meta.missing", nil, false},
		{"title.deeper", nil, false},
		{"items[].id", []any{"a", "b"}, true},
		{"items[*].id", []any{"a", "b"}, true},
		{"items[].tags[]", []any{"x", "y", "z"}, true},
		{"items[0].id", "a", true},
		{"items[-1].name", "no id", true},
		{"items[9]", nil, false},
		{"matrix[]", []any{[]any{1, 2}, []any{3}}, true},
		{"matrix[][]", []any{1, 2, 3}, true},
		{"missing[].id", nil, false},
		{"title[]", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, found := MustParse(tt.expr).Eval(doc)
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Eval() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEval_YAMLMaps(t *testing.T) {
	doc := map[any]any{"a": map[any]any{"b": 1}}
	v, ok, err := Lookup(doc, "a.b")
	if err != nil || !ok || v != 1 {
		t.Errorf("Lookup() = %v, %v, %v", v, ok, err)
	}
}

func TestProjects(t *testing.T) {
	if MustParse("a.b").Projects() {
		t.Error("a.b should not project")
	}
	if !MustParse("a[].b").Projects() {
		t.Error("a[].b should project")
	}
}
