package frontmatter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/artpar/docforge/domain/failure"
	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Extractor turns raw document text into Content.
type Extractor interface {
	Name() string
	Extract(text string) (Content, error)
}

// LineStrategy is the default key: value line reader.
type LineStrategy struct{}

// YAMLStrategy parses the block with a full YAML decoder.
type YAMLStrategy struct{}

// ForName returns the strategy registered under name ("line" or "yaml").
func ForName(name string) (Extractor, error) {
	switch name {
	case "", "line":
		return LineStrategy{}, nil
	case "yaml":
		return YAMLStrategy{}, nil
	default:
		return nil, failure.InvalidFormat(name, "line|yaml")
	}
}

// Extract parses text with the default LineStrategy.
func Extract(text string) (Content, error) {
	return LineStrategy{}.Extract(text)
}

// Body returns the text following the frontmatter block, or the whole text when
// there is no block.
func Body(text string) string {
	_, body, ok := split(text)
	if !ok {
		return text
	}
	return body
}

// Name returns "line".
func (LineStrategy) Name() string { return "line" }

// Extract reads the block line by line.
// This is a PURE function.
func (LineStrategy) Extract(text string) (Content, error) {
	block, _, ok := split(text)
	if !ok {
		return Content{}, failure.ExtractionStrategyFailed(text, "no frontmatter block")
	}

	var keys []string
	values := make(map[string]any)

	for _, line := range block {
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" {
			continue
		}
		keys = append(keys, key)
		values[key] = parseValue(strings.TrimSpace(line[idx+1:]))
	}

	return NewContent(keys, values), nil
}

// Name returns "yaml".
func (YAMLStrategy) Name() string { return "yaml" }

// Extract decodes the block as a YAML mapping, preserving top-level key order.
func (YAMLStrategy) Extract(text string) (Content, error) {
	block, _, ok := split(text)
	if !ok {
		return Content{}, failure.ExtractionStrategyFailed(text, "no frontmatter block")
	}

	src := strings.Join(block, "\n")
	if strings.TrimSpace(src) == "" {
		return NewContent(nil, nil), nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return Content{}, failure.ParseError(src, err)
	}
	if len(doc.Content) == 0 {
		return NewContent(nil, nil), nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return Content{}, failure.ParseError(src, fmt.Errorf("frontmatter is not a mapping"))
	}

	var keys []string
	values := make(map[string]any)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		var v any
		if err := root.Content[i+1].Decode(&v); err != nil {
			return Content{}, failure.ParseError(src, fmt.Errorf("key %q: %w", key, err))
		}
		keys = append(keys, key)
		values[key] = v
	}

	return NewContent(keys, values), nil
}

// split locates the delimited block. It returns the block lines, the remaining body
// and whether a complete block was found.
func split(text string) ([]string, string, bool) {
	text = strings.TrimPrefix(text, "\ufeff")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r \t") != delimiter {
		return nil, "", false
	}

	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r \t") == delimiter {
			block := make([]string, 0, i-1)
			for _, l := range lines[1:i] {
				block = append(block, strings.TrimRight(l, "\r"))
			}
			return block, strings.Join(lines[i+1:], "\n"), true
		}
	}
	return nil, "", false
}

var integerPattern = regexp.MustCompile(`^-?[0-9]+$`)

// parseValue applies scalar coercion: booleans, integers, inline [a, b] sequences,
// quoted strings; everything else stays a string.
func parseValue(raw string) any {
	if unquoted, ok := unquote(raw); ok {
		return unquoted
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		return parseSequence(raw[1 : len(raw)-1])
	}
	return coerce(raw)
}

func parseSequence(inner string) []any {
	items := []any{}
	if strings.TrimSpace(inner) == "" {
		return items
	}
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if unquoted, ok := unquote(part); ok {
			items = append(items, unquoted)
			continue
		}
		items = append(items, coerce(part))
	}
	return items
}

func coerce(s string) any {
	switch s {
	case "true", "TRUE":
		return true
	case "false", "FALSE":
		return false
	}
	if integerPattern.MatchString(s) {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return s
}

func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	first, last := s[0], s[len(s)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return s[1 : len(s)-1], true
	}
	return "", false
}
