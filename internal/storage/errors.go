package storage

import "errors"

var (
	// ErrNotFound is returned when a memory with the requested ID does not exist.
	ErrNotFound = errors.New("memory not found")

	// ErrInvalidInput indicates malformed or missing input data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDegraded indicates a capability (e.g. the full-text index) is
	// unavailable. Callers treat it as a degradation signal, never as a
	// user-facing failure: keyword search yields empty results and hybrid
	// search falls back to semantic.
	ErrDegraded = errors.New("capability unavailable")
)
