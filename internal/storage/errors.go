package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose key exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrVersionConflict is returned by Update when the record changed since
	// the version the caller read. Callers re-read and retry or give up.
	ErrVersionConflict = errors.New("version conflict")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
