package storage

import "errors"

// ErrAccountNotFound is returned when no account exists for the given id.
var ErrAccountNotFound = errors.New("account not found")

// ErrVersionConflict is returned when a conditional write lost a race with
// a concurrent mutation. Callers re-read and retry; the conflict is
// transient and the retry is safe.
var ErrVersionConflict = errors.New("version conflict")

// ErrRecordExists is returned when a transfer record already exists for the
// given idempotency key.
var ErrRecordExists = errors.New("transfer record already exists")

// ErrRecordNotFound is returned when no transfer record exists for the key.
var ErrRecordNotFound = errors.New("transfer record not found")

// ErrRecordFinished is returned when a transfer record is already in a
// terminal state and cannot be finished again.
var ErrRecordFinished = errors.New("transfer record already finished")

// ErrAlreadyProcessed is returned when a reconciliation unit collides with
// an existing processed-event marker.
var ErrAlreadyProcessed = errors.New("event already processed")
