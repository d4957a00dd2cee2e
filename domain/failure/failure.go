// Package failure defines the error taxonomy shared by every docforge component.
// All fallible operations return a *failure.Error (possibly wrapped) whose Kind
// callers can match on without parsing messages.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a class of failure.
type Kind string

const (
	KindEmptyInput               Kind = "EmptyInput"
	KindInvalidFormat            Kind = "InvalidFormat"
	KindTooLong                  Kind = "TooLong"
	KindParseError               Kind = "ParseError"
	KindNotFound                 Kind = "NotFound"
	KindNotConfigured            Kind = "NotConfigured"
	KindAlreadyExecuted          Kind = "AlreadyExecuted"
	KindInvalidState             Kind = "InvalidState"
	KindRefResolutionFailed      Kind = "RefResolutionFailed"
	KindCircularReference        Kind = "CircularReference"
	KindAnalysisTimeout          Kind = "AnalysisTimeout"
	KindConfigNotFound           Kind = "ConfigNotFound"
	KindMissingRequired          Kind = "MissingRequired"
	KindExtractionStrategyFailed Kind = "ExtractionStrategyFailed"
	KindAIServiceError           Kind = "AIServiceError"
	KindProcessingPipelineFailed Kind = "ProcessingPipelineFailed"
)

// Error is the single concrete error type of the taxonomy.
// Only the fields relevant to Kind are populated.
type Error struct {
	Kind Kind

	Field          string
	Input          string
	ExpectedFormat string
	Resource       string
	Name           string
	Component      string
	Pipeline       string
	Expected       string
	Actual         string
	Ref            string
	ConfigPath     string
	TimeoutMs      int64
	Max            int

	// Message is optional free text appended to the summary.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error formats the failure as "<Kind>: <detail>".
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString(string(e.Kind))

	detail := e.detail()
	if detail != "" {
		b.WriteString(": ")
		b.WriteString(detail)
	}
	if e.Message != "" {
		b.WriteString(" (")
		b.WriteString(e.Message)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) detail() string {
	switch e.Kind {
	case KindEmptyInput, KindMissingRequired:
		return fmt.Sprintf("field %q", e.Field)
	case KindInvalidFormat:
		return fmt.Sprintf("expected %s, got %q", e.ExpectedFormat, e.Input)
	case KindTooLong:
		return fmt.Sprintf("field %q exceeds %d characters", e.Field, e.Max)
	case KindParseError, KindExtractionStrategyFailed:
		if e.Input == "" {
			return ""
		}
		return fmt.Sprintf("input %q", e.Input)
	case KindNotFound:
		return fmt.Sprintf("%s %q", e.Resource, e.Name)
	case KindNotConfigured:
		return fmt.Sprintf("component %q", e.Component)
	case KindAlreadyExecuted:
		return fmt.Sprintf("pipeline %q", e.Pipeline)
	case KindInvalidState:
		return fmt.Sprintf("expected %s, actual %s", e.Expected, e.Actual)
	case KindRefResolutionFailed, KindCircularReference:
		return fmt.Sprintf("ref %q", e.Ref)
	case KindAnalysisTimeout:
		return fmt.Sprintf("exceeded %dms", e.TimeoutMs)
	case KindConfigNotFound:
		return fmt.Sprintf("config %q", e.ConfigPath)
	default:
		return ""
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error found in err's chain.
// The second return is false when err carries no taxonomy error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Is reports whether err carries a failure of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	ok := errors.As(err, &fe)
	return fe, ok
}

// Truncate shortens s to max characters, appending "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func EmptyInput(field string) *Error {
	return &Error{Kind: KindEmptyInput, Field: field}
}

func InvalidFormat(input, expectedFormat string) *Error {
	return &Error{Kind: KindInvalidFormat, Input: input, ExpectedFormat: expectedFormat}
}

func TooLong(field string, max int) *Error {
	return &Error{Kind: KindTooLong, Field: field, Max: max}
}

func ParseError(input string, cause error) *Error {
	return &Error{Kind: KindParseError, Input: Truncate(input, 100), Err: cause}
}

func NotFound(resource, name string) *Error {
	return &Error{Kind: KindNotFound, Resource: resource, Name: name}
}

func NotConfigured(component string) *Error {
	return &Error{Kind: KindNotConfigured, Component: component}
}

func AlreadyExecuted(pipeline string) *Error {
	return &Error{Kind: KindAlreadyExecuted, Pipeline: pipeline}
}

func InvalidState(expected, actual string) *Error {
	return &Error{Kind: KindInvalidState, Expected: expected, Actual: actual}
}

func RefResolutionFailed(ref string, cause error) *Error {
	return &Error{Kind: KindRefResolutionFailed, Ref: ref, Err: cause}
}

func CircularReference(ref string) *Error {
	return &Error{Kind: KindCircularReference, Ref: ref}
}

func AnalysisTimeout(timeoutMs int64) *Error {
	return &Error{Kind: KindAnalysisTimeout, TimeoutMs: timeoutMs}
}

func ConfigNotFound(path string, cause error) *Error {
	return &Error{Kind: KindConfigNotFound, ConfigPath: path, Err: cause}
}

func MissingRequired(field string) *Error {
	return &Error{Kind: KindMissingRequired, Field: field}
}

// ExtractionStrategyFailed records the input (truncated to 100 characters) that no
// strategy could handle.
func ExtractionStrategyFailed(input, message string) *Error {
	return &Error{Kind: KindExtractionStrategyFailed, Input: Truncate(input, 100), Message: message}
}

func AIServiceError(cause error) *Error {
	return &Error{Kind: KindAIServiceError, Err: cause}
}

func ProcessingPipelineFailed(message string, cause error) *Error {
	return &Error{Kind: KindProcessingPipelineFailed, Message: message, Err: cause}
}
