// Package errors defines the universal error shape returned by the HTTP
// surface, and the mapping from domain errors onto it.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/thebrief/briefbot/api"
	"github.com/thebrief/briefbot/internal/brief"
)

// Error represents a universal error type between the services.
type Error struct {
	Status  int
	Err     error // The error this wraps
	Details []Detail
}

type Detail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s, details: %v", e.Status, e.Err, e.Details)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type transport struct {
	Message string   `json:"message"`
	Details []Detail `json:"details"`
	Status  int      `json:"status"`
}

func (s *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(transport{
		Message: s.Err.Error(),
		Details: s.Details,
		Status:  s.Status,
	})
}

func (s *Error) UnmarshalJSON(byts []byte) error {
	t := transport{}
	if err := json.Unmarshal(byts, &t); err != nil {
		return err
	}

	s.Err = errors.New(t.Message)
	s.Details = t.Details
	s.Status = t.Status
	return nil
}

func E(args ...any) *Error {
	ret := &Error{
		Status:  http.StatusInternalServerError,
		Err:     nil,
		Details: nil,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Detail:
			ret.Details = append(ret.Details, arg)
		case []Detail:
			ret.Details = append(ret.Details, arg...)
		}
	}

	return ret
}

// Coerce turns any error into an *Error, mapping the pipeline's domain
// errors onto their HTTP statuses: duplicates are conflicts, missing
// resources are not-found, everything else is internal.
func Coerce(err error) *Error {
	structured := &Error{}
	if errors.As(err, &structured) {
		return structured
	}

	var invalid api.Error
	if errors.As(err, &invalid) {
		e := E(err, http.StatusBadRequest)
		for _, d := range invalid.Details {
			e.Details = append(e.Details, Detail{Field: d.Field, Error: d.Error})
		}
		return e
	}

	dup := &brief.DuplicateError{}
	if errors.As(err, &dup) {
		return E(err, http.StatusConflict)
	}
	if errors.Is(err, brief.ErrNotFound) {
		return E(err, http.StatusNotFound)
	}

	return E(err, http.StatusInternalServerError)
}
