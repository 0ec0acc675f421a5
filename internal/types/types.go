// File: internal/types/types.go
package types

import (
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// FileID is an NTFS MFT record number. Only the low 48 bits of the on-disk
// file reference are retained; the 16-bit sequence number is dropped.
type FileID uint64

// FileRefIndexMask extracts the MFT index from a 64-bit file reference.
const FileRefIndexMask = 0x0000FFFFFFFFFFFF

// RootDirectoryID is the MFT record number of the volume root directory.
const RootDirectoryID FileID = 5

// MaxParentDepth bounds parent-chain walks. A non-orphaned record must
// reach the volume root within this many hops.
const MaxParentDepth = 4096

// RecordFlags is a bitset of per-record attributes.
type RecordFlags uint16

const (
	// FlagDirectory marks a directory record.
	FlagDirectory RecordFlags = 1 << iota

	// FlagHidden mirrors FILE_ATTRIBUTE_HIDDEN.
	FlagHidden

	// FlagSystem mirrors FILE_ATTRIBUTE_SYSTEM; also set on NTFS metadata
	// records (MFT index < 16).
	FlagSystem

	// FlagReparse marks reparse points (junctions, symlinks).
	FlagReparse

	// FlagTombstone marks a record deleted via the change journal and
	// awaiting compaction.
	FlagTombstone

	// FlagOrphan marks a record whose parent chain could not be resolved;
	// orphans are indexed under a synthetic prefix so they stay searchable.
	FlagOrphan
)

// IsDir reports whether the directory flag is set.
func (f RecordFlags) IsDir() bool { return f&FlagDirectory != 0 }

// IsTombstone reports whether the tombstone flag is set.
func (f RecordFlags) IsTombstone() bool { return f&FlagTombstone != 0 }

// IsOrphan reports whether the orphan flag is set.
func (f RecordFlags) IsOrphan() bool { return f&FlagOrphan != 0 }

// Filetime is a Windows FILETIME: 100-nanosecond ticks since
// 1601-01-01T00:00:00Z.
type Filetime uint64

// filetimeEpochDelta is the number of 100-ns ticks between the Windows
// epoch (1601) and the Unix epoch (1970).
const filetimeEpochDelta = 116444736000000000

// Time converts the Filetime to a time.Time in UTC.
func (ft Filetime) Time() time.Time {
	if ft == 0 {
		return time.Time{}
	}
	ticks := int64(ft) - filetimeEpochDelta
	return time.Unix(ticks/10_000_000, (ticks%10_000_000)*100).UTC()
}

// FiletimeFrom converts a time.Time to a Filetime.
func FiletimeFrom(t time.Time) Filetime {
	if t.IsZero() {
		return 0
	}
	return Filetime(t.UnixNano()/100 + filetimeEpochDelta)
}

// FileRecord is the indexed unit: one live file or directory name on a
// volume. Hardlinked files produce one FileRecord per Win32 name, sharing
// ID but distinguished by NameIndex.
type FileRecord struct {
	// ID is the MFT record number, unique within a volume.
	ID FileID

	// ParentID is the MFT record number of the containing directory.
	// The volume root carries a self-reference.
	ParentID FileID

	// Name is the file name with no path separators, UTF-8.
	Name string

	// NameIndex distinguishes multiple Win32 names of a hardlinked record.
	NameIndex uint16

	// Flags carries directory/hidden/system/reparse/tombstone/orphan bits.
	Flags RecordFlags

	// Size is the logical size in bytes; 0 for directories.
	Size uint64

	// MTime is the last-modified time.
	MTime Filetime

	// ExtHash is the lowercased extension hash, or 0 when the name has
	// no extension.
	ExtHash uint64
}

// IsDir reports whether the record is a directory.
func (r *FileRecord) IsDir() bool { return r.Flags.IsDir() }

// Extension returns the lowercased extension without the dot, or "".
func (r *FileRecord) Extension() string {
	return ExtensionOf(r.Name)
}

// RawRecord carries the raw on-disk fields of one MFT FILE record name
// before path reconstruction.
type RawRecord struct {
	ID       FileID
	ParentID FileID

	// Name is one Win32 (or POSIX) name of the record.
	Name string

	// NameIndex is the ordinal of this name among the record's Win32
	// names; 0 for all non-hardlinked records.
	NameIndex uint16

	Flags RecordFlags
	Size  uint64
	MTime Filetime
}

// Record converts the raw record to an index FileRecord, computing the
// extension hash.
func (r *RawRecord) Record() FileRecord {
	return FileRecord{
		ID:        r.ID,
		ParentID:  r.ParentID,
		Name:      r.Name,
		NameIndex: r.NameIndex,
		Flags:     r.Flags,
		Size:      r.Size,
		MTime:     r.MTime,
		ExtHash:   ExtensionHash(r.Name),
	}
}

// ExtensionOf returns the lowercased extension of name without the dot,
// or "" when name has none. A leading dot alone (".gitignore") is not an
// extension.
func ExtensionOf(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// ExtensionHash hashes the lowercased extension of name for the fast
// extension pre-filter. Returns 0 when name has no extension.
func ExtensionHash(name string) uint64 {
	ext := ExtensionOf(name)
	if ext == "" {
		return 0
	}
	return HashExtension(ext)
}

// HashExtension hashes an already-lowercased extension string.
func HashExtension(ext string) uint64 {
	if ext == "" {
		return 0
	}
	return xxhash.Sum64String(ext)
}

// VolumeInfo describes a mounted volume eligible for indexing. Immutable
// for a given mount.
type VolumeInfo struct {
	// Letter is the drive letter ('C') or a synthesized identifier for
	// traversal-mode mounts.
	Letter byte

	// Mount is the mount path including trailing separator (`C:\`).
	Mount string

	// Label is the filesystem label, possibly empty.
	Label string

	// Serial is the volume serial number. Traversal-mode volumes carry a
	// serial synthesized from the mount path.
	Serial uint64

	// TotalBytes is the volume capacity.
	TotalBytes uint64

	// ClusterSize is the allocation unit size in bytes.
	ClusterSize uint32

	// Filesystem names the on-disk format ("NTFS").
	Filesystem string

	// SupportsJournal reports whether the volume has a usable change
	// journal.
	SupportsJournal bool
}

// OrphanPrefix is the synthetic path prefix under which unresolvable
// records are indexed.
const OrphanPrefix = "<orphan>"
