package formatter

import (
	"encoding/json"
	"io"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	// Compact disables indentation.
	Compact bool
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Description returns the formatter description.
func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// MimeType returns the content type.
func (f *JSONFormatter) MimeType() string {
	return "application/json"
}

// Format renders v as JSON with two-space indentation.
func (f *JSONFormatter) Format(w io.Writer, v any) error {
	if s, ok := v.(string); ok {
		return writeString(w, s)
	}
	return f.encode(w, v)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	return f.encode(w, output)
}

// encode writes JSON to the writer.
func (f *JSONFormatter) encode(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if !f.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}
