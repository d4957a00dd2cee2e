package formatter

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// XMLFormatter formats output as XML: a declaration followed by a <root> element
// with one child per top-level key. Nested maps nest, arrays repeat the element.
type XMLFormatter struct{}

// NewXMLFormatter creates a new XML formatter.
func NewXMLFormatter() *XMLFormatter {
	return &XMLFormatter{}
}

// Name returns the formatter name.
func (f *XMLFormatter) Name() string {
	return "xml"
}

// Description returns the formatter description.
func (f *XMLFormatter) Description() string {
	return "XML output format"
}

// MimeType returns the content type.
func (f *XMLFormatter) MimeType() string {
	return "application/xml"
}

// Format renders v as XML.
func (f *XMLFormatter) Format(w io.Writer, v any) error {
	if s, ok := v.(string); ok {
		return writeString(w, s)
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(`<?xml version="1.0"?>` + "\n")
	bw.WriteString("<root>\n")
	if m, ok := v.(map[string]any); ok {
		for _, k := range sortedMapKeys(m) {
			if err := writeElement(bw, k, m[k], 1); err != nil {
				return err
			}
		}
	} else if v != nil {
		if err := writeElement(bw, "value", v, 1); err != nil {
			return err
		}
	}
	bw.WriteString("</root>\n")
	return bw.Flush()
}

// FormatError formats an error as XML.
func (f *XMLFormatter) FormatError(w io.Writer, err error) error {
	return f.Format(w, map[string]any{"error": err.Error()})
}

func writeElement(w *bufio.Writer, name string, v any, depth int) error {
	tag := ElementName(name)
	indent := strings.Repeat("  ", depth)

	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if nested, ok := item.([]any); ok {
				if err := writeElement(w, tag, map[string]any{"item": nested}, depth); err != nil {
					return err
				}
				continue
			}
			if err := writeElement(w, tag, item, depth); err != nil {
				return err
			}
		}
		return nil

	case map[string]any:
		if len(t) == 0 {
			fmt.Fprintf(w, "%s<%s/>\n", indent, tag)
			return nil
		}
		fmt.Fprintf(w, "%s<%s>\n", indent, tag)
		for _, k := range sortedMapKeys(t) {
			if err := writeElement(w, k, t[k], depth+1); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "%s</%s>\n", indent, tag)
		return nil

	case nil:
		fmt.Fprintf(w, "%s<%s/>\n", indent, tag)
		return nil
	}

	fmt.Fprintf(w, "%s<%s>", indent, tag)
	if err := xml.EscapeText(w, []byte(scalarText(v))); err != nil {
		return err
	}
	fmt.Fprintf(w, "</%s>\n", tag)
	return nil
}

// ElementName turns a map key into a valid XML element name.
func ElementName(key string) string {
	var b strings.Builder
	for i, r := range key {
		valid := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i > 0 {
			valid = valid || r == '-' || r == '.' || (r >= '0' && r <= '9')
		}
		if valid {
			b.WriteRune(r)
			continue
		}
		if i == 0 && r >= '0' && r <= '9' {
			b.WriteRune('_')
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

func sortedMapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
