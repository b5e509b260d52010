package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	// ErrNotFound means the entity does not exist in the store.
	ErrNotFound = errors.New("not found")
	// ErrConflict means an entity with the same identity is already stored.
	ErrConflict = errors.New("conflict")
	// ErrLockHeld means a distributed lock is owned by another process.
	ErrLockHeld = errors.New("lock held")
)
