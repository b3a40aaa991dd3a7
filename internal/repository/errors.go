package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a conditional update lost to a concurrent writer.
	ErrConflict = errors.New("repository: conflict")
	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("repository: duplicate")
)
