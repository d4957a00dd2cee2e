// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/artpar/docforge/domain/execution"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// FileSystem is the narrow file capability the engine reads inputs and writes
// outputs through. Its absence is valid: the pipeline then keeps output in memory.
type FileSystem interface {
	ReadTextFile(path string) (string, error)
	WriteFile(path string, content []byte) error
	Exists(path string) bool
}

// -----------------------------------------------------------------------------
// Collaborator Ports
// -----------------------------------------------------------------------------

// AnalysisService is an external service that can stand in for built-in
// directive evaluation. Any non-nil result is accepted.
type AnalysisService interface {
	Analyze(ctx context.Context, prompt string, options map[string]any) (any, error)
}

// FormatCatalog exposes the configured output formats.
type FormatCatalog interface {
	IsExtensionSupported(ext string) bool
	GetFormat(name string) (FormatInfo, bool)
}

// FormatInfo describes one configured output format.
type FormatInfo struct {
	Name       string
	Extensions []string
	MimeType   string
	Default    bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ResultStore persists the execution ledger.
type ResultStore interface {
	Save(ctx context.Context, rec execution.Record) error
	Get(ctx context.Context, id string) (execution.Record, error)
	List(ctx context.Context, filter execution.Filter) ([]execution.Record, error)
}
