// File: internal/interfaces/backend.go
package interfaces

import (
	"context"

	"github.com/glintsearch/glint/internal/types"
)

// Backend abstracts volume, scan, and watch operations over a host
// filesystem. The core index and orchestrator interact with the platform
// only through this interface; implementations are Ntfs, Traversal, and
// Mock, selected at startup from a privilege probe.
type Backend interface {
	// Name returns the backend identifier ("ntfs", "traversal", "mock").
	Name() string

	// ListVolumes enumerates mounted volumes this backend can index.
	ListVolumes() ([]types.VolumeInfo, error)

	// FullScan produces every live record on the volume as a finite,
	// non-restartable iterator. Progress is reported through sink.
	// Fails with PermissionDenied when raw access is refused, with
	// Unsupported when the backend cannot serve the volume, and with Io on
	// read errors.
	FullScan(ctx context.Context, vol types.VolumeInfo, sink ProgressSink) (RecordIterator, error)

	// OpenWatch begins streaming change events from the given USN.
	// sinceUSN == 0 means "current journal tail".
	OpenWatch(ctx context.Context, vol types.VolumeInfo, sinceUSN uint64) (WatchHandle, error)

	// ResolveParent looks up a single record by id for forward references
	// during path resolution. Returns nil when the record does not exist.
	ResolveParent(vol types.VolumeInfo, id types.FileID) (*types.RawRecord, error)
}

// RecordIterator is a pull iterator over raw records from a full scan.
type RecordIterator interface {
	// Next returns the next record, or (nil, nil) at end of stream.
	Next() (*types.RawRecord, error)

	// Close releases the underlying volume handle. Safe to call twice.
	Close() error
}

// ChangeEvent is one decoded change-journal entry.
type ChangeEvent struct {
	// USN is the journal sequence number, monotone per volume.
	USN uint64

	// ID is the affected file's MFT record number.
	ID types.FileID

	// ParentID is the containing directory at event time.
	ParentID types.FileID

	// Name is the file name carried by the journal entry.
	Name string

	// Reason is the raw USN reason bitmask.
	Reason uint32

	// IsDir reports whether the entry refers to a directory.
	IsDir bool

	// Time is the journal entry timestamp.
	Time types.Filetime
}

// USN reason bits used by the coalescer. Values match the NTFS journal.
const (
	ReasonDataOverwrite  uint32 = 0x00000001
	ReasonDataExtend     uint32 = 0x00000002
	ReasonDataTruncation uint32 = 0x00000004
	ReasonBasicInfo      uint32 = 0x00008000
	ReasonFileCreate     uint32 = 0x00000100
	ReasonFileDelete     uint32 = 0x00000200
	ReasonRenameOldName  uint32 = 0x00001000
	ReasonRenameNewName  uint32 = 0x00002000
	ReasonClose          uint32 = 0x80000000
)

// WatchHandle is a running change-journal stream for one volume.
type WatchHandle interface {
	// Events returns the bounded delivery channel. The channel is closed
	// after a terminal error.
	Events() <-chan ChangeEvent

	// Err returns the terminal error after Events is closed: a
	// JournalLost error on gap/wrap/overflow, nil on clean shutdown.
	Err() error

	// Close stops the stream and releases the volume handle.
	Close() error
}
