package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidQuery signals a query rejected before dispatch (empty text,
	// threshold outside [0,1], unknown content type).
	ErrInvalidQuery = errors.New("invalid query")
	// ErrBackendUnavailable signals a transient backend failure (connection
	// refused, 5xx). Soft failure: retried on the next probe cycle, never mid-request.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrBackendProtocol signals a malformed response from a backend store.
	ErrBackendProtocol = errors.New("malformed backend response")
	// ErrAllBackendsFailed signals that every dispatched backend failed.
	ErrAllBackendsFailed = errors.New("all backends failed")
	// ErrNoEligibleBackends signals that planning produced no sub-queries.
	ErrNoEligibleBackends = errors.New("no eligible backends for query")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)

// BackendFailure is one backend's contribution to an aggregate failure.
type BackendFailure struct {
	BackendID string
	Err       error
}

// AllBackendsFailedError wraps ErrAllBackendsFailed with per-backend detail.
type AllBackendsFailedError struct {
	Failures []BackendFailure
}

func (e *AllBackendsFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.BackendID, f.Err))
	}
	return fmt.Sprintf("%s: %s", ErrAllBackendsFailed.Error(), strings.Join(parts, "; "))
}

func (e *AllBackendsFailedError) Unwrap() error { return ErrAllBackendsFailed }

// NewAllBackendsFailed creates an aggregate failure error.
func NewAllBackendsFailed(failures []BackendFailure) error {
	return &AllBackendsFailedError{Failures: failures}
}
