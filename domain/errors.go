package domain

import (
	"errors"
	"fmt"
)

// ErrAlreadyRegistered indicates a second registration attempt for the
// same (event, user) pair. Benign from the caller's perspective: the
// first registration stands and nothing was written.
var ErrAlreadyRegistered = errors.New("already registered")

// ErrNotAuthenticated indicates the action requires a caller identity
// that is absent. Raised before any write is issued.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrNotFound indicates the referenced document does not exist.
var ErrNotFound = errors.New("not found")

// ErrConcurrencyConflict indicates that the underlying storage rejected an
// update because a newer version of the entity is already persisted.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// StoreUnavailableError wraps a network or connection failure talking to
// the document store.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// PartialCascadeError reports a cascade delete that removed some but not
// all documents. Surfaced distinctly from total failure so an operator
// can decide between retrying and manual reconciliation; the whole
// cascade is safe to rerun because individual deletes are no-ops on
// absent documents.
type PartialCascadeError struct {
	EventID      string
	Remaining    []string
	EventDeleted bool
	Err          error
}

func (e *PartialCascadeError) Error() string {
	return fmt.Sprintf("cascade delete of event %s incomplete: %d registrations remain (event deleted: %v): %v",
		e.EventID, len(e.Remaining), e.EventDeleted, e.Err)
}

func (e *PartialCascadeError) Unwrap() error { return e.Err }
