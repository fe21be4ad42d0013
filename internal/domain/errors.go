package domain

import "errors"

var (
	// ErrValidation indicates structurally invalid input.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound indicates an unknown session or report key.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition indicates a missing prerequisite, such as starting
	// a collection without planned tasks or aggregating an empty window.
	ErrPrecondition = errors.New("precondition failed")

	// ErrConflict indicates a concurrent writer on the same key or an
	// operation against a finished session.
	ErrConflict = errors.New("conflict")

	// ErrUpstream indicates an embedding or language-model call failed
	// or timed out.
	ErrUpstream = errors.New("upstream service failure")
)
