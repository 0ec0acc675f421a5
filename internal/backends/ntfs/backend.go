// File: internal/backends/ntfs/backend.go
package ntfs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/glintsearch/glint/internal/device"
	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/interfaces"
	"github.com/glintsearch/glint/internal/parsers/mft"
	"github.com/glintsearch/glint/internal/types"
)

// progressStride: the scan iterator reports after this many records.
const progressStride = 10000

// Backend reads NTFS volumes through the MFT and the USN change journal.
// In live mode it opens raw volume devices (Windows only); in image mode
// it serves a single volume image file, which works on any platform.
type Backend struct {
	log zerolog.Logger

	// imagePath, when set, selects image mode with imageMount as the
	// synthetic mount path.
	imagePath  string
	imageMount string

	mu sync.Mutex
	// tables keeps the scan-opened table reader per mount for
	// ResolveParent lookups during path resolution.
	tables map[string]*mft.TableReader
}

// NewBackend creates a live-volume backend.
func NewBackend(logger zerolog.Logger) *Backend {
	return &Backend{log: logger, tables: make(map[string]*mft.TableReader)}
}

// NewImageBackend creates a backend serving one NTFS image file mounted
// at the given synthetic mount path (e.g. `C:\`).
func NewImageBackend(imagePath, mount string, logger zerolog.Logger) *Backend {
	return &Backend{
		log:        logger,
		imagePath:  imagePath,
		imageMount: mount,
		tables:     make(map[string]*mft.TableReader),
	}
}

// Name implements interfaces.Backend.
func (b *Backend) Name() string { return "ntfs" }

// ListVolumes enumerates NTFS volumes: the image in image mode, the
// host's NTFS drives in live mode.
func (b *Backend) ListVolumes() ([]types.VolumeInfo, error) {
	if b.imagePath != "" {
		dev, err := device.OpenImage(b.imagePath)
		if err != nil {
			return nil, glerrors.Wrap(glerrors.KindIo, "ntfs.volumes", err)
		}
		defer dev.Close()

		table, err := mft.NewTableReader(dev, b.log)
		if err != nil {
			return nil, err
		}
		letter := byte('C')
		if len(b.imageMount) > 0 {
			letter = b.imageMount[0]
		}
		return []types.VolumeInfo{{
			Letter:          letter,
			Mount:           b.imageMount,
			Serial:          table.Serial(),
			ClusterSize:     table.ClusterSize(),
			TotalBytes:      uint64(dev.Size()),
			Filesystem:      "NTFS",
			SupportsJournal: false,
		}}, nil
	}
	return listNtfsVolumes()
}

// FullScan opens the volume device and streams every live MFT record.
func (b *Backend) FullScan(ctx context.Context, vol types.VolumeInfo, sink interfaces.ProgressSink) (interfaces.RecordIterator, error) {
	dev, err := b.openDevice(vol)
	if err != nil {
		return nil, err
	}

	table, err := mft.NewTableReader(dev, b.log)
	if err != nil {
		dev.Close()
		return nil, err
	}

	b.mu.Lock()
	b.tables[vol.Mount] = table
	b.mu.Unlock()

	if sink == nil {
		sink = interfaces.NopProgress{}
	}
	return &scanIterator{
		backend: b,
		mount:   vol.Mount,
		dev:     dev,
		inner:   table.Iterator(),
		total:   table.RecordCount(),
		sink:    sink,
		ctx:     ctx,
	}, nil
}

// ResolveParent looks up one record during path resolution. Only valid
// while a scan of the volume is open.
func (b *Backend) ResolveParent(vol types.VolumeInfo, id types.FileID) (*types.RawRecord, error) {
	b.mu.Lock()
	table := b.tables[vol.Mount]
	b.mu.Unlock()
	if table == nil {
		return nil, nil
	}

	rec, err := table.ReadRecord(id)
	if err != nil {
		return nil, nil
	}
	if !rec.InUse {
		return nil, nil
	}
	names := rec.BestNames()
	if len(names) == 0 {
		return nil, nil
	}
	flags := types.RecordFlags(0)
	if rec.IsDir {
		flags |= types.FlagDirectory
	}
	return &types.RawRecord{
		ID:       id,
		ParentID: names[0].ParentID,
		Name:     names[0].Name,
		Flags:    flags,
		MTime:    rec.MTime,
	}, nil
}

// OpenWatch starts a change-journal stream. Image volumes have no
// journal.
func (b *Backend) OpenWatch(ctx context.Context, vol types.VolumeInfo, sinceUSN uint64) (interfaces.WatchHandle, error) {
	if b.imagePath != "" {
		return nil, glerrors.New(glerrors.KindUnsupported, "ntfs.watch",
			"image volumes have no change journal")
	}
	return openJournalWatch(ctx, vol, sinceUSN, b.log)
}

// openDevice returns the volume device for scan access.
func (b *Backend) openDevice(vol types.VolumeInfo) (interfaces.VolumeDevice, error) {
	if b.imagePath != "" {
		dev, err := device.OpenImage(b.imagePath)
		if err != nil {
			return nil, glerrors.Wrap(glerrors.KindIo, "ntfs.open", err)
		}
		return dev, nil
	}
	return openRawVolume(vol.Letter)
}

// scanIterator wraps the MFT iterator with progress reporting, context
// checks, and device ownership.
type scanIterator struct {
	backend *Backend
	mount   string
	dev     interfaces.VolumeDevice
	inner   *mft.TableIterator
	total   uint64
	count   uint64
	sink    interfaces.ProgressSink
	ctx     context.Context
	closed  bool
}

// Next implements interfaces.RecordIterator.
func (it *scanIterator) Next() (*types.RawRecord, error) {
	if it.count%progressStride == 0 {
		select {
		case <-it.ctx.Done():
			return nil, glerrors.Cancelled("ntfs.scan")
		default:
		}
	}

	rec, err := it.inner.Next()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		it.sink.Report(interfaces.Progress{
			Phase: "scanning", Volume: it.mount, Processed: it.count, Total: it.total,
		})
		return nil, nil
	}

	it.count++
	if it.count%progressStride == 0 {
		it.sink.Report(interfaces.Progress{
			Phase: "scanning", Volume: it.mount, Processed: it.count, Total: it.total,
		})
	}
	return rec, nil
}

// Close releases the device and the backend's ResolveParent handle.
func (it *scanIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true

	it.backend.mu.Lock()
	delete(it.backend.tables, it.mount)
	it.backend.mu.Unlock()

	it.inner.Close()
	return it.dev.Close()
}
