package app

import (
	"fmt"

	"github.com/artpar/docforge/domain/failure"
)

// PhaseError is a pipeline failure attributed to one phase. It wraps the original
// failure so failure.KindOf still reports the original kind; untyped causes are
// reported as ProcessingPipelineFailed.
type PhaseError struct {
	Phase   int
	Message string
	Err     error
}

func newPhaseError(phase int, message string, err error) *PhaseError {
	if _, typed := failure.KindOf(err); !typed {
		err = failure.ProcessingPipelineFailed(message, err)
	}
	return &PhaseError{Phase: phase, Message: message, Err: err}
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Kind returns the kind of the wrapped failure.
func (e *PhaseError) Kind() failure.Kind {
	kind, _ := failure.KindOf(e.Err)
	return kind
}
