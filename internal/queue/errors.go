package queue

import "errors"

// Sentinel errors, checked with errors.Is.
var (
	// ErrEmpty is returned by Peek/Get when the queue has no entries.
	ErrEmpty = errors.New("queue: empty")
	// ErrAlreadyExists is returned by Put when the derived key hash
	// collides with an existing entry's key hash.
	ErrAlreadyExists = errors.New("queue: key already exists")
	// ErrNoSuchKey is returned by Update when no entry exists for the key.
	ErrNoSuchKey = errors.New("queue: update for non-existing key")
	// ErrInvalidName is returned by Open for a queue name containing
	// characters outside [A-Za-z0-9_].
	ErrInvalidName = errors.New("queue: invalid queue name")
)
