// File: internal/parsers/mft/table_reader.go
package mft

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/interfaces"
	"github.com/glintsearch/glint/internal/types"
)

// systemRecordLimit: MFT indices below this are NTFS metadata files and
// are indexed with the system flag set.
const systemRecordLimit = 16

// TableReader reads $MFT as a file by walking its data-attribute run list
// and decodes FILE records into raw index records.
type TableReader struct {
	dev            interfaces.VolumeDevice
	boot           *BootSector
	runs           []Run
	recordSize     uint32
	totalRecords   uint64
	tornSkipped    uint64
	corruptSkipped uint64
	log            zerolog.Logger
}

// NewTableReader opens the MFT of the volume behind dev: it reads the
// boot sector, decodes $MFT's own FILE record (record 0), and maps the
// table's data runs.
func NewTableReader(dev interfaces.VolumeDevice, logger zerolog.Logger) (*TableReader, error) {
	bootData := make([]byte, BootSectorSize)
	if _, err := dev.ReadAt(bootData, 0); err != nil {
		return nil, glerrors.Wrap(glerrors.KindIo, "mft.boot", err)
	}
	boot, err := NewBootSectorReader(bootData)
	if err != nil {
		return nil, glerrors.Wrap(glerrors.KindCorrupt, "mft.boot", err)
	}

	t := &TableReader{
		dev:        dev,
		boot:       boot,
		recordSize: boot.FileRecordSize(),
		log:        logger,
	}

	// Record 0 is $MFT itself; its unnamed $DATA run list locates the
	// rest of the table.
	record0 := make([]byte, t.recordSize)
	off := int64(boot.MftLCN()) * int64(boot.ClusterSize())
	if _, err := dev.ReadAt(record0, off); err != nil {
		return nil, glerrors.Wrap(glerrors.KindIo, "mft.record0", err)
	}
	parsed, err := NewFileRecordReader(record0, boot.BytesPerSector())
	if err != nil {
		return nil, glerrors.Wrap(glerrors.KindCorrupt, "mft.record0", err)
	}
	if len(parsed.DataRuns) == 0 {
		return nil, glerrors.New(glerrors.KindCorrupt, "mft.record0", "record 0 has no data runs")
	}

	t.runs = parsed.DataRuns
	t.totalRecords = parsed.DataSize / uint64(t.recordSize)
	if t.totalRecords == 0 {
		var clusters uint64
		for _, r := range t.runs {
			clusters += r.Clusters
		}
		t.totalRecords = clusters * uint64(boot.ClusterSize()) / uint64(t.recordSize)
	}

	return t, nil
}

// ClusterSize returns the volume allocation unit size in bytes.
func (t *TableReader) ClusterSize() uint32 { return t.boot.ClusterSize() }

// Serial returns the volume serial number from the boot sector.
func (t *TableReader) Serial() uint64 { return t.boot.Serial() }

// RecordCount returns the number of FILE records in the table.
func (t *TableReader) RecordCount() uint64 { return t.totalRecords }

// SkippedRecords returns how many records were dropped for torn fixups or
// structural corruption so far.
func (t *TableReader) SkippedRecords() uint64 { return t.tornSkipped + t.corruptSkipped }

// recordOffset translates an MFT index to an absolute volume byte offset
// through the run list.
func (t *TableReader) recordOffset(id types.FileID) (int64, error) {
	byteOff := uint64(id) * uint64(t.recordSize)
	cluster := uint64(t.boot.ClusterSize())
	for _, run := range t.runs {
		runBytes := run.Clusters * cluster
		if byteOff < runBytes {
			if run.Sparse {
				return 0, fmt.Errorf("record %d falls in a sparse MFT run", id)
			}
			return int64(uint64(run.LCN)*cluster + byteOff), nil
		}
		byteOff -= runBytes
	}
	return 0, fmt.Errorf("record %d beyond MFT runs", id)
}

// ReadRecord fetches and decodes one FILE record by MFT index.
func (t *TableReader) ReadRecord(id types.FileID) (*ParsedRecord, error) {
	off, err := t.recordOffset(id)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, t.recordSize)
	if _, err := t.dev.ReadAt(buf, off); err != nil {
		return nil, glerrors.Wrap(glerrors.KindIo, "mft.read", err)
	}
	return NewFileRecordReader(buf, t.boot.BytesPerSector())
}

// emit converts one parsed base record to raw index records, one per kept
// name. System metadata records and $-prefixed names are flagged system.
func (t *TableReader) emit(id types.FileID, rec *ParsedRecord) []types.RawRecord {
	names := rec.BestNames()
	if len(names) == 0 {
		return nil
	}

	flags := types.RecordFlags(0)
	if rec.IsDir {
		flags |= types.FlagDirectory
	}
	if rec.StandardFlags&dosAttrHidden != 0 {
		flags |= types.FlagHidden
	}
	if rec.StandardFlags&dosAttrSystem != 0 || uint64(id) < systemRecordLimit {
		flags |= types.FlagSystem
	}
	if rec.StandardFlags&dosAttrReparse != 0 {
		flags |= types.FlagReparse
	}

	size := rec.DataSize
	if rec.IsDir {
		size = 0
	}

	out := make([]types.RawRecord, 0, len(names))
	for i, n := range names {
		f := flags
		if strings.HasPrefix(n.Name, "$") {
			f |= types.FlagSystem
		}
		out = append(out, types.RawRecord{
			ID:        id,
			ParentID:  n.ParentID,
			Name:      n.Name,
			NameIndex: uint16(i),
			Flags:     f,
			Size:      size,
			MTime:     rec.MTime,
		})
	}
	return out
}

// resolveExtensions merges $FILE_NAME and $DATA attributes from extension
// records referenced by the base record's $ATTRIBUTE_LIST. Each child
// reference is followed once; a reference already visited, including the
// base record itself, is skipped.
func (t *TableReader) resolveExtensions(id types.FileID, rec *ParsedRecord) {
	if len(rec.AttributeList) == 0 {
		return
	}
	seen := map[types.FileID]bool{id: true}
	for _, entry := range rec.AttributeList {
		if entry.Type != AttrFileName && entry.Type != AttrData {
			continue
		}
		if seen[entry.RecordID] {
			continue
		}
		seen[entry.RecordID] = true

		ext, err := t.ReadRecord(entry.RecordID)
		if err != nil {
			t.corruptSkipped++
			t.log.Debug().Uint64("record", uint64(entry.RecordID)).Err(err).
				Msg("skipping unreadable extension record")
			continue
		}
		if ext.BaseRecord != id {
			// Not actually an extension of this record; stale list entry.
			continue
		}
		rec.Names = append(rec.Names, ext.Names...)
		if !rec.HasData && ext.HasData {
			rec.HasData = true
			rec.DataSize = ext.DataSize
		}
	}
}

// Iterator returns a finite iterator over all live base records in MFT
// order. Corrupt or torn records are counted and skipped; device read
// failures abort the iteration with an Io error.
func (t *TableReader) Iterator() *TableIterator {
	return &TableIterator{table: t}
}

// TableIterator walks the MFT sequentially. It is not restartable.
type TableIterator struct {
	table   *TableReader
	next    types.FileID
	pending []types.RawRecord
	closed  bool
}

// Next returns the next raw record, or (nil, nil) at end of table.
func (it *TableIterator) Next() (*types.RawRecord, error) {
	for {
		if len(it.pending) > 0 {
			r := it.pending[0]
			it.pending = it.pending[1:]
			return &r, nil
		}
		if it.closed || uint64(it.next) >= it.table.totalRecords {
			return nil, nil
		}

		id := it.next
		it.next++

		rec, err := it.table.ReadRecord(id)
		if err != nil {
			switch e := err.(type) {
			case *ErrTornRecord:
				it.table.tornSkipped++
				it.table.log.Warn().Uint64("record", uint64(id)).Int("sector", e.Sector).
					Msg("skipping torn record")
				continue
			default:
				if err == ErrEmptyRecord {
					continue
				}
				if err == ErrSkippedRecord {
					it.table.tornSkipped++
					continue
				}
				if glerrors.IsKind(err, glerrors.KindIo) {
					// A failed cluster read fails the whole scan.
					return nil, err
				}
				it.table.corruptSkipped++
				it.table.log.Warn().Uint64("record", uint64(id)).Err(err).
					Msg("skipping corrupt record")
				continue
			}
		}

		// Deleted records are dropped; tombstones only ever originate
		// from the change journal. Extension records are emitted through
		// their base record.
		if !rec.InUse || (rec.BaseRecord != 0 && rec.BaseRecord != id) {
			continue
		}

		it.table.resolveExtensions(id, rec)
		it.pending = it.table.emit(id, rec)
	}
}

// Close marks the iterator exhausted. The underlying device is owned by
// the caller.
func (it *TableIterator) Close() error {
	it.closed = true
	return nil
}
