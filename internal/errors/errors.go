// File: internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can choose a recovery action
// (retry, privilege downgrade, rescan) without string matching.
type Kind string

const (
	// KindIo is an underlying read/write failure; retryable by the caller.
	KindIo Kind = "io"

	// KindPermissionDenied means raw volume or journal access was refused;
	// the orchestrator downgrades to the traversal backend.
	KindPermissionDenied Kind = "permission_denied"

	// KindUnsupported means the backend cannot handle this volume.
	KindUnsupported Kind = "unsupported"

	// KindCorrupt means an MFT record or snapshot failed structural
	// validation.
	KindCorrupt Kind = "corrupt"

	// KindJournalLost means a USN gap, wrap, or backpressure overflow;
	// triggers a rescan of the affected volume.
	KindJournalLost Kind = "journal_lost"

	// KindSnapshotIncompatible means the snapshot format version or CRC
	// did not match.
	KindSnapshotIncompatible Kind = "snapshot_incompatible"

	// KindCancelled means cooperative cancellation was observed. Never
	// wrapped; returned verbatim.
	KindCancelled Kind = "cancelled"

	// KindInvalidQuery means the query parser rejected the input.
	KindInvalidQuery Kind = "invalid_query"
)

// Error is a classified Glint error.
type Error struct {
	Kind       Kind
	Op         string
	Underlying error

	// Offset is the byte offset of the rejected token for KindInvalidQuery.
	Offset int
}

// New creates a classified error with a formatted message.
func New(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Underlying: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. A nil err returns nil. An already
// classified Cancelled error is returned verbatim.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsKind(err, KindCancelled) {
		return err
	}
	return &Error{Kind: kind, Op: op, Underlying: err}
}

// Cancelled returns the canonical cancellation error for an operation.
func Cancelled(op string) *Error {
	return &Error{Kind: KindCancelled, Op: op, Underlying: errors.New("operation cancelled")}
}

// InvalidQuery reports a parse rejection at a byte offset in the input.
func InvalidQuery(offset int, format string, args ...any) *Error {
	return &Error{
		Kind:       KindInvalidQuery,
		Op:         "query.parse",
		Underlying: fmt.Errorf(format, args...),
		Offset:     offset,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Underlying)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsKind reports whether the first classified error in err's chain
// carries the given kind.
func IsKind(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first classified error in the chain, or
// "" when none is found.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// RequiresRescan reports whether the error mandates rebuilding the index
// for the affected scope.
func RequiresRescan(err error) bool {
	switch KindOf(err) {
	case KindJournalLost, KindSnapshotIncompatible, KindCorrupt:
		return true
	}
	return false
}
