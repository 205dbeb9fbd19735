package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrQueueTableMissing reports a queue table that does not exist in the database.
	ErrQueueTableMissing = errors.New("queue table missing")
)
