package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// InvalidInputError reports a malformed candidate, unknown gate or empty name.
// It is recovered per row by batch callers.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// DuplicateKeyError reports an insert that would put two active glyphs on the
// same normalized key.
type DuplicateKeyError struct {
	NormalizedKey string
	ExistingID    int64
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q (active glyph %d)", e.NormalizedKey, e.ExistingID)
}

// DedupConflictError reports a restore that would collide with an active glyph
// that entered the active table after the archived row was archived.
type DedupConflictError struct {
	ArchivedID    int64
	NormalizedKey string
	ConflictID    int64
}

func (e *DedupConflictError) Error() string {
	return fmt.Sprintf("restore archived %d: key %q held by active glyph %d; merge required",
		e.ArchivedID, e.NormalizedKey, e.ConflictID)
}

// StoreUnavailableError reports a backing store that cannot be opened or is
// locked.
type StoreUnavailableError struct {
	Path string
	Err  error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store %s unavailable: %v", e.Path, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// StoreWriteError reports an INSERT, UPDATE or DELETE the store rejected
// inside an otherwise open transaction: disk full, read-only file, I/O error,
// a constraint raised by the database.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write %s: %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// WriteFailed wraps the error of a write statement as a StoreWriteError.
// Cancellation is not a store fault and is wrapped plainly.
func WriteFailed(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &StoreWriteError{Op: op, Err: err}
}

// BackupFailedError reports a destructive operation refused because the
// pre-operation backup could not be written.
type BackupFailedError struct {
	Path string
	Err  error
}

func (e *BackupFailedError) Error() string {
	return fmt.Sprintf("backup %s failed: %v", e.Path, e.Err)
}

func (e *BackupFailedError) Unwrap() error { return e.Err }

// TimeoutExceededError reports an operation cut short by its deadline. Index is
// the last row processed, or -1 when no row was.
type TimeoutExceededError struct {
	Op      string
	Index   int
	Elapsed time.Duration
}

func (e *TimeoutExceededError) Error() string {
	return fmt.Sprintf("%s: timeout exceeded after %s (last index %d)", e.Op, e.Elapsed, e.Index)
}

// BatchError reports the offending row of a rolled-back batch.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch row %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// NotFoundError reports a lookup of a glyph or archived row that does not exist.
type NotFoundError struct {
	Kind string // glyph | archived
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// Error kinds reported on the wire.
const (
	KindInvalidInput     = "invalid_input"
	KindDuplicateKey     = "duplicate_key"
	KindDedupConflict    = "dedup_conflict"
	KindStoreUnavailable = "store_unavailable"
	KindStoreWrite       = "store_write_failed"
	KindBackupFailed     = "backup_failed"
	KindTimeout          = "timeout_exceeded"
	KindNotFound         = "not_found"
	KindInternal         = "internal"
)

// ErrorKind classifies err by the first typed error in its chain. A
// BatchError is classified by the row error it wraps.
func ErrorKind(err error) string {
	var (
		inv      *InvalidInputError
		dup      *DuplicateKeyError
		conflict *DedupConflictError
		store    *StoreUnavailableError
		write    *StoreWriteError
		backup   *BackupFailedError
		timeout  *TimeoutExceededError
		missing  *NotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &inv):
		return KindInvalidInput
	case errors.As(err, &dup):
		return KindDuplicateKey
	case errors.As(err, &conflict):
		return KindDedupConflict
	case errors.As(err, &backup):
		return KindBackupFailed
	case errors.As(err, &store):
		return KindStoreUnavailable
	case errors.As(err, &write):
		return KindStoreWrite
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &missing):
		return KindNotFound
	default:
		return KindInternal
	}
}
