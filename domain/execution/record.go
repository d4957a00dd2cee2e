// Package execution holds the ledger record written for every pipeline run.
package execution

import "time"

// Status of a finished run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record summarizes one pipeline execution.
type Record struct {
	ID         string
	Bundle     string
	InputPath  string
	OutputPath string
	Format     string
	Status     Status
	ErrorKind  string
	Error      string
	Warnings   []string
	StartedAt  time.Time
	Duration   time.Duration
}

// Succeeded reports whether the run produced a result.
func (r Record) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Filter narrows a ledger listing.
type Filter struct {
	Bundle string
	Status Status
	Limit  int
}
