package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/artpar/docforge/app"
	"github.com/artpar/docforge/domain/failure"
)

// ContentType is the media type of every API response.
const ContentType = "application/json"

// Document is the top-level response body. Exactly one of Data and Errors is set.
type Document struct {
	Data   any            `json:"data,omitempty"`
	Errors []Error        `json:"errors,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Error is one error object.
type Error struct {
	Status string         `json:"status"`
	Code   string         `json:"code"`
	Title  string         `json:"title"`
	Detail string         `json:"detail,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

func writeDocument(w http.ResponseWriter, status int, doc Document) {
	writeJSON(w, status, doc)
}

func writeData(w http.ResponseWriter, status int, data any, meta map[string]any) {
	writeDocument(w, status, Document{Data: data, Meta: meta})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code by failure kind.
func writeError(w http.ResponseWriter, err error) {
	e := errorObject(err)
	writeDocument(w, StatusFor(err), Document{Errors: []Error{e}})
}

func errorObject(err error) Error {
	status := StatusFor(err)
	e := Error{
		Status: strconv.Itoa(status),
		Code:   "internal_error",
		Title:  http.StatusText(status),
		Detail: err.Error(),
	}
	if kind, ok := failure.KindOf(err); ok {
		e.Code = string(kind)
	}
	var pe *app.PhaseError
	if errors.As(err, &pe) {
		e.Meta = map[string]any{"phase": pe.Phase}
	}
	return e
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	kind, ok := failure.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindInvalidState, failure.KindAlreadyExecuted:
		return http.StatusConflict
	case failure.KindEmptyInput, failure.KindInvalidFormat, failure.KindParseError,
		failure.KindTooLong, failure.KindExtractionStrategyFailed,
		failure.KindRefResolutionFailed, failure.KindCircularReference:
		return http.StatusBadRequest
	case failure.KindNotConfigured:
		return http.StatusNotImplemented
	case failure.KindAnalysisTimeout:
		return http.StatusGatewayTimeout
	case failure.KindAIServiceError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
