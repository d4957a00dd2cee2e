// Package frontmatter extracts the leading metadata block of a document.
//
// A block starts with a line consisting of "---" and ends at the next such line:
//
//	---
//	title: Sample Document
//	category: test
//	---
//	# Body starts here
//
// The default LineStrategy is a pragmatic line reader, not a YAML parser: each line is
// split on its first colon and lines without a colon are ignored. YAMLStrategy parses
// the block as real YAML for documents that need nested values.
package frontmatter

import (
	"bytes"
	"encoding/json"
)

// Content is an ordered, immutable key/value mapping parsed from a frontmatter block.
type Content struct {
	keys   []string
	values map[string]any
}

// NewContent builds Content from keys in order. Later duplicates overwrite the value
// but keep the first position.
func NewContent(keys []string, values map[string]any) Content {
	c := Content{values: make(map[string]any, len(keys))}
	for _, k := range keys {
		if _, seen := c.values[k]; !seen {
			c.keys = append(c.keys, k)
		}
		c.values[k] = values[k]
	}
	return c
}

// Keys returns the keys in document order.
func (c Content) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Get returns the value for key.
func (c Content) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Len returns the number of keys.
func (c Content) Len() int {
	return len(c.keys)
}

// Map returns a copy of the content as a plain map.
func (c Content) Map() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the content as a JSON object in document order.
func (c Content) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(c.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
