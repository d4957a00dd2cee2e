// Package directive evaluates the x-* annotations of a resolved schema against
// extracted frontmatter.
//
// Directives on one property are applied in a fixed order:
//
//	x-derived-from / x-extract-from   derivation and extraction
//	x-jmespath-filter                 filtering
//	x-flatten-arrays, x-merge-arrays, x-derived-unique
//	                                  aggregation
//	x-template / x-template-items     template selection
//
// x-frontmatter-part restricts lookups to the frontmatter block. In batch mode a
// frontmatter-part array collects one item per input document.
package directive

import (
	"sync"

	"github.com/artpar/docforge/core/pathexpr"
	"github.com/jmespath/go-jmespath"
	"github.com/rs/zerolog"
)

// Directive keywords.
const (
	DerivedFrom     = "x-derived-from"
	DerivedUnique   = "x-derived-unique"
	FlattenArrays   = "x-flatten-arrays"
	MergeArrays     = "x-merge-arrays"
	JMESPathFilter  = "x-jmespath-filter"
	FrontmatterPart = "x-frontmatter-part"
	ExtractFrom     = "x-extract-from"
	Template        = "x-template"
	TemplateItems   = "x-template-items"
)

// BodyKey is the lookup name under which the document body is visible to
// properties that are not marked x-frontmatter-part.
const BodyKey = "body"

// Document is one input: its parsed frontmatter and the text after the block.
type Document struct {
	Frontmatter map[string]any
	Body        string
}

// Selection holds the templates chosen by x-template and x-template-items.
// Items is keyed by the dotted property path the item template applies to.
type Selection struct {
	Document any
	Items    map[string]any
}

// HasDocument reports whether a document template was selected.
func (s Selection) HasDocument() bool { return s.Document != nil }

// Processor evaluates directives. It is safe for concurrent use; parsed path
// expressions and compiled queries are cached.
type Processor struct {
	logger zerolog.Logger

	pathsMu sync.RWMutex
	paths   map[string]pathexpr.Path

	queriesMu sync.RWMutex
	queries   map[string]*jmespath.JMESPath
}

// NewProcessor creates a processor.
func NewProcessor(logger zerolog.Logger) *Processor {
	return &Processor{
		logger:  logger,
		paths:   make(map[string]pathexpr.Path),
		queries: make(map[string]*jmespath.JMESPath),
	}
}

// HasDirectives reports whether node carries any x-* directive.
func HasDirectives(node map[string]any) bool {
	for k := range node {
		if len(k) > 2 && k[0] == 'x' && k[1] == '-' {
			return true
		}
	}
	return false
}

func (p *Processor) path(expr string) (pathexpr.Path, error) {
	p.pathsMu.RLock()
	parsed, ok := p.paths[expr]
	p.pathsMu.RUnlock()
	if ok {
		return parsed, nil
	}

	parsed, err := pathexpr.Parse(expr)
	if err != nil {
		return pathexpr.Path{}, err
	}

	p.pathsMu.Lock()
	p.paths[expr] = parsed
	p.pathsMu.Unlock()
	return parsed, nil
}

func (p *Processor) query(expr string) (*jmespath.JMESPath, error) {
	p.queriesMu.RLock()
	q, ok := p.queries[expr]
	p.queriesMu.RUnlock()
	if ok {
		return q, nil
	}

	q, err := jmespath.Compile(expr)
	if err != nil {
		return nil, err
	}

	p.queriesMu.Lock()
	p.queries[expr] = q
	p.queriesMu.Unlock()
	return q, nil
}

func flag(node map[string]any, key string) bool {
	b, _ := node[key].(bool)
	return b
}
