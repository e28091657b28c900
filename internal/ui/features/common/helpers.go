// Package common provides the helpers shared by the UI features: JSON
// encoding, error mapping and the per-workspace session registry.
package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/leapstack-labs/workbench/internal/backend"
	"github.com/leapstack-labs/workbench/internal/history"
	"github.com/leapstack-labs/workbench/internal/project"
	"github.com/leapstack-labs/workbench/internal/workbench"
)

// ErrBadRequest marks a malformed request body or parameter.
var ErrBadRequest = errors.New("bad request")

// ErrorBody is the JSON shape of a failed request.
type ErrorBody struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind"`
	Errors []string `json:"errors,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// WriteError maps err to a status and writes it as an ErrorBody.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	body := ErrorBody{Error: err.Error(), Kind: workbench.Classify(err).String()}
	var ve *workbench.ValidationError
	if errors.As(err, &ve) {
		body.Errors = ve.Errors
	}
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", "status", status, "error", err)
	}
	WriteJSON(w, status, body)
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	switch {
	case workbench.Classify(err) == workbench.KindValidation:
		return http.StatusUnprocessableEntity
	case workbench.Classify(err) == workbench.KindCapacity:
		return http.StatusConflict
	case errors.Is(err, workbench.ErrTabNotFound),
		errors.Is(err, history.ErrNotFound),
		errors.Is(err, backend.ErrModelNotFound),
		errors.Is(err, project.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workbench.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, workbench.ErrCloseRejected),
		errors.Is(err, workbench.ErrReadonly),
		errors.Is(err, workbench.ErrNoFilePath),
		errors.Is(err, workbench.ErrNotBoundModel),
		errors.Is(err, workbench.ErrCompileInFlight),
		errors.Is(err, workbench.ErrExecutionInFlight),
		errors.Is(err, workbench.ErrStaleResponse):
		return http.StatusConflict
	case errors.Is(err, project.ErrPathEscape):
		return http.StatusBadRequest
	case workbench.Classify(err) == workbench.KindTransient:
		return http.StatusBadGateway
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, workbench.ErrInvalidOption),
		errors.Is(err, workbench.ErrUnknownEnvironment),
		errors.Is(err, backend.ErrUnknownEnvironment),
		errors.Is(err, workbench.ErrCannotExecute):
		return http.StatusBadRequest
	case errors.Is(err, workbench.ErrNotConfigured):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
