package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func sampleData() map[string]any {
	return map[string]any{
		"title": "Sample Document",
		"count": 3,
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"author": "ann"},
	}
}

// ===========================================
// Registry Tests
// ===========================================

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if r.defaultFmt != "json" {
		t.Errorf("default format should be 'json', got %q", r.defaultFmt)
	}
	if r.Default() != nil {
		t.Error("empty registry should have no default")
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewJSONFormatter()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(NewJSONFormatter()); err == nil {
		t.Error("duplicate Register() should fail")
	}
}

func TestRegistry_Default_Fallback(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(NewYAMLFormatter())
	_ = r.Register(NewXMLFormatter())

	if got := r.Default().Name(); got != "xml" {
		t.Errorf("Default() = %q, want first sorted name xml", got)
	}
	if err := r.SetDefault("yaml"); err != nil {
		t.Fatalf("SetDefault() error = %v", err)
	}
	if got := r.Default().Name(); got != "yaml" {
		t.Errorf("Default() = %q, want yaml", got)
	}
	if err := r.SetDefault("table"); err == nil {
		t.Error("SetDefault(unknown) should fail")
	}
}

func TestBuiltinRegistry(t *testing.T) {
	r := NewBuiltinRegistry()
	want := []string{"custom", "handlebars", "json", "xml", "yaml"}
	if got := r.List(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

// ===========================================
// Formatter Tests
// ===========================================

func TestStringPassthrough(t *testing.T) {
	for _, f := range builtins() {
		var buf bytes.Buffer
		if err := f.Format(&buf, "# Title\n{raw}"); err != nil {
			t.Fatalf("%s Format() error = %v", f.Name(), err)
		}
		if buf.String() != "# Title\n{raw}" {
			t.Errorf("%s Format() = %q, want verbatim string", f.Name(), buf.String())
		}
	}
}

func TestJSONFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter().Format(&buf, sampleData()); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	if !strings.Contains(buf.String(), "\n  \"title\": \"Sample Document\"") {
		t.Errorf("output not indented with two spaces:\n%s", buf.String())
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["title"] != "Sample Document" {
		t.Errorf("title = %v", decoded["title"])
	}
}

func TestJSONFormatter_Compact(t *testing.T) {
	var buf bytes.Buffer
	f := &JSONFormatter{Compact: true}
	if err := f.Format(&buf, map[string]any{"a": "<b>"}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if buf.String() != "{\"a\":\"<b>\"}\n" {
		t.Errorf("Format() = %q", buf.String())
	}
}

func TestJSONFormatter_FormatError(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter().FormatError(&buf, errors.New("boom")); err != nil {
		t.Fatalf("FormatError() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"error": "boom"`) {
		t.Errorf("FormatError() = %s", buf.String())
	}
}

func TestYAMLFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	if err := NewYAMLFormatter().Format(&buf, sampleData()); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	out := buf.String()
	for _, line := range []string{"title: Sample Document", "count: 3", "meta:\n  author: ann"} {
		if !strings.Contains(out, line) {
			t.Errorf("output missing %q:\n%s", line, out)
		}
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
}

func TestXMLFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	data := sampleData()
	data["note"] = "a < b & c"
	data["1st"] = true
	data["empty"] = map[string]any{}
	data["matrix"] = []any{[]any{1, 2}}

	if err := NewXMLFormatter().Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	want := `<?xml version="1.0"?>
<root>
  <_1st>true</_1st>
  <count>3</count>
  <empty/>
  <matrix>
    <item>1</item>
    <item>2</item>
  </matrix>
  <meta>
    <author>ann</author>
  </meta>
  <note>a &lt; b &amp; c</note>
  <tags>a</tags>
  <tags>b</tags>
  <title>Sample Document</title>
</root>
`
	if buf.String() != want {
		t.Errorf("Format() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestElementName(t *testing.T) {
	tests := map[string]string{
		"title":    "title",
		"my key":   "my_key",
		"9lives":   "_9lives",
		"a-b.c":    "a-b.c",
		"":         "_",
		"-leading": "_leading",
		"x:y":      "x_y",
	}
	for in, want := range tests {
		if got := ElementName(in); got != want {
			t.Errorf("ElementName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	f := NewTextFormatter("custom", "text/plain")
	if f.Name() != "custom" || f.MimeType() != "text/plain" {
		t.Errorf("Name/MimeType = %q/%q", f.Name(), f.MimeType())
	}

	var buf bytes.Buffer
	if err := f.Format(&buf, 42); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if buf.String() != "42" {
		t.Errorf("Format(42) = %q", buf.String())
	}
}
