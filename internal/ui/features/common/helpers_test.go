package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/workbench/internal/backend"
	"github.com/leapstack-labs/workbench/internal/history"
	"github.com/leapstack-labs/workbench/internal/project"
	"github.com/leapstack-labs/workbench/internal/workbench"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &workbench.ValidationError{Path: "a.sql", Errors: []string{"bad"}}, http.StatusUnprocessableEntity},
		{"tab limit", workbench.ErrTabLimitReached, http.StatusConflict},
		{"tab not found", workbench.ErrTabNotFound, http.StatusNotFound},
		{"history not found", fmt.Errorf("%w: x", history.ErrNotFound), http.StatusNotFound},
		{"wrapped model not found", &workbench.ServiceError{Op: "compile", Err: backend.ErrModelNotFound}, http.StatusNotFound},
		{"file not found", &workbench.ServiceError{Op: "read file", Err: project.ErrNotFound}, http.StatusNotFound},
		{"unauthorized", workbench.ErrUnauthorized, http.StatusForbidden},
		{"close rejected", workbench.ErrCloseRejected, http.StatusConflict},
		{"readonly", workbench.ErrReadonly, http.StatusConflict},
		{"stale", workbench.ErrStaleResponse, http.StatusConflict},
		{"path escape", &workbench.ServiceError{Op: "read file", Err: project.ErrPathEscape}, http.StatusBadRequest},
		{"service failure", &workbench.ServiceError{Op: "execute", Err: errors.New("boom")}, http.StatusBadGateway},
		{"bad request", fmt.Errorf("%w: cursor", ErrBadRequest), http.StatusBadRequest},
		{"invalid option", workbench.ErrInvalidOption, http.StatusBadRequest},
		{"unknown environment", workbench.ErrUnknownEnvironment, http.StatusBadRequest},
		{"not configured", workbench.ErrNotConfigured, http.StatusNotImplemented},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestValidWorkspaceID(t *testing.T) {
	for _, id := range []string{"default", "team-a", "ws_1.2", "A"} {
		assert.True(t, ValidWorkspaceID(id), id)
	}
	for _, id := range []string{"", "-lead", "../x", "a b", strings.Repeat("a", 65)} {
		assert.False(t, ValidWorkspaceID(id), id)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, DecodeJSON(r, &v))
	assert.Equal(t, "x", v.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","other":1}`))
	assert.ErrorIs(t, DecodeJSON(r, &v), ErrBadRequest)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.ErrorIs(t, DecodeJSON(r, &v), ErrBadRequest)
}

func TestWriteErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, &workbench.ValidationError{Path: "a.sql", Errors: []string{"unbalanced braces"}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"kind":"validation"`)
	assert.Contains(t, rec.Body.String(), `"errors":["unbalanced braces"]`)
}
