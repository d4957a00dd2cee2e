// Package idgen provides ports.IDGenerator implementations for pipeline ids.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/docforge/ports"
	"github.com/google/uuid"
)

// UUID generates random v4 UUIDs, optionally prefixed ("run_3f2a...").
type UUID struct {
	Prefix string
}

// New generates a new id.
func (g UUID) New() string {
	return g.Prefix + uuid.New().String()
}

var _ ports.IDGenerator = UUID{}

// Sequential generates "<prefix><n>" ids starting at 1. Safe for concurrent use.
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns the next id.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

// Issued returns how many ids have been handed out.
func (s *Sequential) Issued() uint64 {
	return s.counter.Load()
}

var _ ports.IDGenerator = (*Sequential)(nil)
