// Package template binds processed frontmatter data to template skeletons.
//
// A template is either text or an object tree. Placeholders name data paths:
//
//	{title}            scalar value
//	{tags[]}           array expansion, rendered per ArrayFormat
//	{items[].name}     name of every element of items
//
// Handlebars templates use double braces ({{title}}). In object templates a string
// that is exactly one placeholder is replaced by the raw value, keeping its type.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/artpar/docforge/core/pathexpr"
	"github.com/artpar/docforge/domain/failure"
	"gopkg.in/yaml.v3"
)

// Format identifies a template and output syntax.
type Format string

const (
	FormatJSON       Format = "json"
	FormatYAML       Format = "yaml"
	FormatXML        Format = "xml"
	FormatHandlebars Format = "handlebars"
	FormatCustom     Format = "custom"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatJSON, FormatYAML, FormatXML, FormatHandlebars, FormatCustom}
}

// ParseFormat validates a format name. Matching is case-insensitive and "yml"
// is accepted for yaml.
func ParseFormat(name string) (Format, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", failure.EmptyInput("format")
	}
	if n == "yml" {
		n = string(FormatYAML)
	}
	for _, f := range Formats() {
		if string(f) == n {
			return f, nil
		}
	}
	return "", failure.InvalidFormat(name, "json|yaml|xml|handlebars|custom")
}

// TemplateFormat is a validated template. Template is a string or a map[string]any.
type TemplateFormat struct {
	Format   Format
	Template any
}

// NewTemplateFormat validates format and template.
func NewTemplateFormat(format string, tmpl any) (TemplateFormat, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return TemplateFormat{}, err
	}

	switch t := tmpl.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return TemplateFormat{}, failure.EmptyInput("template")
		}
		return TemplateFormat{Format: f, Template: t}, nil
	case map[string]any, map[any]any:
		m, _ := pathexpr.AsMap(t)
		return TemplateFormat{Format: f, Template: m}, nil
	case nil:
		return TemplateFormat{}, failure.InvalidFormat("null", "string or object template")
	default:
		return TemplateFormat{}, failure.InvalidFormat(fmt.Sprintf("%T", tmpl), "string or object template")
	}
}

// ParseTemplate builds a TemplateFormat from source text. A json template that
// parses as a JSON object becomes an object template; anything else, yaml included,
// stays a text template since unquoted placeholders are valid YAML flow mappings.
func ParseTemplate(format string, src []byte) (TemplateFormat, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return TemplateFormat{}, err
	}

	trimmed := bytes.TrimSpace(src)
	if len(trimmed) == 0 {
		return TemplateFormat{}, failure.EmptyInput("template")
	}

	if f == FormatJSON && trimmed[0] == '{' {
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			return NewTemplateFormat(string(f), obj)
		}
	}
	return NewTemplateFormat(string(f), string(src))
}

// DecodeObject decodes a YAML or JSON object template, for templates embedded in
// configuration or loaded explicitly as structured data.
func DecodeObject(format string, src []byte) (TemplateFormat, error) {
	var obj map[string]any
	if err := yaml.Unmarshal(src, &obj); err != nil {
		return TemplateFormat{}, failure.ParseError(string(src), err)
	}
	if obj == nil {
		return TemplateFormat{}, failure.InvalidFormat(strings.TrimSpace(string(src)), "object template")
	}
	return NewTemplateFormat(format, obj)
}

// IsText reports whether the template is a string.
func (t TemplateFormat) IsText() bool {
	_, ok := t.Template.(string)
	return ok
}
