package assessment

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("assessment record not found")
	ErrAlreadyExists = errors.New("assessment record already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrIdentityMismatch means two records with different patient IDs were
	// handed to the reconciliation engine. It is a programming error.
	ErrIdentityMismatch = errors.New("reconcile: patient id mismatch")

	// ErrEmptyChange is returned when a change log entry lists no fields.
	ErrEmptyChange = errors.New("change log entry has no changed fields")

	// ErrUnresolved is returned when a conflicted decision is committed
	// before the caller picked a side.
	ErrUnresolved = errors.New("reconcile: conflict not resolved")
)

// PersistenceError reports that a store could not durably save a record.
// The mutation that produced the record is not committed.
type PersistenceError struct {
	PatientID string
	Revision  int
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist record %s (revision %d): %v", e.PatientID, e.Revision, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
