package errors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thebrief/briefbot/api"
	"github.com/thebrief/briefbot/internal/brief"
	bberrs "github.com/thebrief/briefbot/internal/errors"
)

func TestEConstructor(t *testing.T) {
	got := bberrs.E(
		"something went wrong",
		bberrs.Detail{Field: "name", Error: "was bad"},
		http.StatusBadRequest,
	)
	want := &bberrs.Error{
		Err: errors.New("something went wrong"),
		Details: []bberrs.Detail{
			{Field: "name", Error: "was bad"},
		},
		Status: http.StatusBadRequest,
	}

	assert.Equal(t, want, got)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name       string
		input      error
		wantStatus int
	}{
		{
			name:       "structured error passes through",
			input:      bberrs.E("nope", http.StatusTeapot),
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "wrapped structured error",
			input:      fmt.Errorf("outer: %w", bberrs.E("nope", http.StatusTeapot)),
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "duplicate is a conflict",
			input:      &brief.DuplicateError{URL: "https://example.com/a", ExistingID: "x-art"},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "wrapped duplicate",
			input:      fmt.Errorf("persisting: %w", &brief.DuplicateError{URL: "https://example.com/a"}),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "not found",
			input:      fmt.Errorf("loading feed: %w", brief.ErrNotFound),
			wantStatus: http.StatusNotFound,
		},
		{
			name: "validation error is a bad request",
			input: api.Error{
				Reason:  "invalid_request",
				Message: "request was invalid",
				Details: []api.ErrorDetail{{Field: "url", Error: "url is required"}},
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "anything else is internal",
			input:      errors.New("disk on fire"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := bberrs.Coerce(tc.input)
			assert.Equal(t, tc.wantStatus, got.Status)
		})
	}
}

func TestCoerce_ValidationDetails(t *testing.T) {
	got := bberrs.Coerce(fmt.Errorf("error validating request: %w", api.Error{
		Reason:  "invalid_request",
		Message: "request was invalid",
		Details: []api.ErrorDetail{{Field: "url", Error: "url is required"}},
	}))

	assert.Equal(t, http.StatusBadRequest, got.Status)
	assert.Equal(t, []bberrs.Detail{{Field: "url", Error: "url is required"}}, got.Details)
}
