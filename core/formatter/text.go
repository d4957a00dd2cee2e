package formatter

import (
	"fmt"
	"io"
)

// TextFormatter writes rendered template text unchanged. It backs the handlebars
// and custom formats, where the template itself defines the output syntax.
type TextFormatter struct {
	name     string
	mimeType string
}

// NewTextFormatter creates a passthrough formatter registered under name.
func NewTextFormatter(name, mimeType string) *TextFormatter {
	return &TextFormatter{name: name, mimeType: mimeType}
}

// Name returns the formatter name.
func (f *TextFormatter) Name() string {
	return f.name
}

// Description returns the formatter description.
func (f *TextFormatter) Description() string {
	return f.name + " template text"
}

// MimeType returns the content type.
func (f *TextFormatter) MimeType() string {
	return f.mimeType
}

// Format writes strings as-is. Structured values fall back to JSON.
func (f *TextFormatter) Format(w io.Writer, v any) error {
	switch t := v.(type) {
	case string:
		return writeString(w, t)
	case nil:
		return nil
	case map[string]any, []any:
		return NewJSONFormatter().Format(w, t)
	default:
		_, err := fmt.Fprint(w, t)
		return err
	}
}

// FormatError formats an error as a single line.
func (f *TextFormatter) FormatError(w io.Writer, err error) error {
	_, werr := fmt.Fprintf(w, "error: %v\n", err)
	return werr
}
