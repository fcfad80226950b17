// Package ingesterr gives the ingest pipeline's failure categories a
// concrete type, so callers can switch on kind instead of matching error
// strings.
package ingesterr

import (
	"errors"
	"fmt"
)

// Kind is one of the pipeline's eight abstract error categories.
type Kind int

const (
	// NetworkTransient is retried per the fetch client's backoff policy.
	NetworkTransient Kind = iota
	// NetworkFatal is a 404/410/auth failure: recorded against the one
	// file, the pipeline continues with the rest of the tuple.
	NetworkFatal
	// HashMismatch is fatal for that file; the .part is removed.
	HashMismatch
	// SizeMismatch gets the same treatment as HashMismatch.
	SizeMismatch
	// ParseError is per-paragraph skipped, or per-Release fatal for the
	// timestamp if the Release file itself cannot be parsed.
	ParseError
	// StorageError is fatal for the transaction: rolled back, the
	// pipeline aborts this tuple.
	StorageError
	// LockHeld means another process owns the archive; the process
	// exits non-zero without touching state.
	LockHeld
	// InvalidArgument is a CLI usage error.
	InvalidArgument
)

func (k Kind) String() string {
	switch k {
	case NetworkTransient:
		return "network_transient"
	case NetworkFatal:
		return "network_fatal"
	case HashMismatch:
		return "hash_mismatch"
	case SizeMismatch:
		return "size_mismatch"
	case ParseError:
		return "parse_error"
	case StorageError:
		return "storage_error"
	case LockHeld:
		return "lock_held"
	case InvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error carrying the failing subject (a URL, a
// sha256, a paragraph offset) and the wrapped cause.
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Subject, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err under kind, tagging it with subject for logging.
func New(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

// Is reports whether err (or anything it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
