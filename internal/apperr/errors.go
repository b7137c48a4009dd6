// Package apperr holds the sentinel errors shared across packages and mapped
// to HTTP status codes at the API edge.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrDegraded is returned by operations on a challenge whose definition
	// failed to load.
	ErrDegraded    = errors.New("challenge system not fully loaded")
	ErrNotReady    = errors.New("collaborator not ready")
	ErrNoMoreHints = errors.New("no more hints available")
	ErrInvalidCode = errors.New("invalid recovery code")
	ErrLocked      = errors.New("terminal locked")
)
