package app

import "fmt"

// Warning kinds.
const (
	WarnEmptyFrontmatter     = "Empty frontmatter"
	WarnUnresolved           = "Unresolved"
	WarnMissingRequired      = "Missing required"
	WarnUnmatched            = "Unmatched"
	WarnWriteSkipped         = "Write skipped"
	WarnUnsupportedExtension = "Unsupported extension"
)

// Warning is a non-fatal finding. Warnings are kept in the order raised.
type Warning struct {
	Phase   int    `json:"phase"`
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message,omitempty"`
}

// String returns "<Kind>: <path>", e.g. "Missing required: category".
func (w Warning) String() string {
	if w.Path == "" {
		if w.Message == "" {
			return w.Kind
		}
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Path)
}

// Strings formats a warning list.
func Strings(ws []Warning) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}
