// File: internal/backends/mock/backend.go
package mock

import (
	"context"
	"sync"

	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/interfaces"
	"github.com/glintsearch/glint/internal/types"
)

// Backend is a scripted backend for tests: fixed volumes and records,
// a pushable change-event stream, and injectable failures.
type Backend struct {
	mu sync.Mutex

	VolumeList []types.VolumeInfo

	// Records holds the scan result per mount path.
	Records map[string][]types.RawRecord

	// ScanErr, when set, fails FullScan.
	ScanErr error

	// WatchErr, when set, fails OpenWatch.
	WatchErr error

	watches []*Watch

	scanCount int
}

// New creates an empty mock backend.
func New() *Backend {
	return &Backend{Records: make(map[string][]types.RawRecord)}
}

// Name implements interfaces.Backend.
func (b *Backend) Name() string { return "mock" }

// AddVolume registers a volume with its scripted scan records.
func (b *Backend) AddVolume(info types.VolumeInfo, records []types.RawRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.VolumeList = append(b.VolumeList, info)
	b.Records[info.Mount] = records
}

// SetRecords replaces a volume's scripted scan result, emulating disk
// state changes between scans.
func (b *Backend) SetRecords(mount string, records []types.RawRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Records[mount] = records
}

// ScanCount reports how many full scans were requested.
func (b *Backend) ScanCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scanCount
}

// ListVolumes implements interfaces.Backend.
func (b *Backend) ListVolumes() ([]types.VolumeInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.VolumeInfo, len(b.VolumeList))
	copy(out, b.VolumeList)
	return out, nil
}

// FullScan implements interfaces.Backend.
func (b *Backend) FullScan(ctx context.Context, vol types.VolumeInfo, sink interfaces.ProgressSink) (interfaces.RecordIterator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ScanErr != nil {
		return nil, b.ScanErr
	}
	b.scanCount++
	records := make([]types.RawRecord, len(b.Records[vol.Mount]))
	copy(records, b.Records[vol.Mount])
	if sink != nil {
		sink.Report(interfaces.Progress{Phase: "scanning", Volume: vol.Mount, Total: uint64(len(records))})
	}
	return &sliceIterator{records: records}, nil
}

// ResolveParent scans the scripted records.
func (b *Backend) ResolveParent(vol types.VolumeInfo, id types.FileID) (*types.RawRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range b.Records[vol.Mount] {
		if rec.ID == id {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

// OpenWatch implements interfaces.Backend. Tests push events through the
// returned watch.
func (b *Backend) OpenWatch(ctx context.Context, vol types.VolumeInfo, sinceUSN uint64) (interfaces.WatchHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.WatchErr != nil {
		return nil, b.WatchErr
	}
	w := &Watch{
		events: make(chan interfaces.ChangeEvent, 1024),
		done:   make(chan struct{}),
	}
	b.watches = append(b.watches, w)
	return w, nil
}

// Watches returns every watch handed out so far.
func (b *Backend) Watches() []*Watch {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Watch, len(b.watches))
	copy(out, b.watches)
	return out
}

// Watch is a scripted change stream.
type Watch struct {
	mu     sync.Mutex
	events chan interfaces.ChangeEvent
	errVal error
	done   chan struct{}
	closed bool
}

// Push delivers one event to the consumer.
func (w *Watch) Push(ev interfaces.ChangeEvent) {
	w.events <- ev
}

// Fail terminates the stream with the given error, as a real watch does
// on journal loss.
func (w *Watch) Fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.errVal = err
	close(w.events)
	close(w.done)
}

// FailJournalLost terminates the stream with a JournalLost error.
func (w *Watch) FailJournalLost() {
	w.Fail(glerrors.New(glerrors.KindJournalLost, "mock.watch", "journal lost"))
}

// Events implements interfaces.WatchHandle.
func (w *Watch) Events() <-chan interfaces.ChangeEvent { return w.events }

// Err implements interfaces.WatchHandle.
func (w *Watch) Err() error {
	select {
	case <-w.done:
		return w.errVal
	default:
		return nil
	}
}

// Close implements interfaces.WatchHandle.
func (w *Watch) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.events)
		close(w.done)
	}
	return nil
}

type sliceIterator struct {
	records []types.RawRecord
	pos     int
}

func (it *sliceIterator) Next() (*types.RawRecord, error) {
	if it.pos >= len(it.records) {
		return nil, nil
	}
	rec := it.records[it.pos]
	it.pos++
	return &rec, nil
}

func (it *sliceIterator) Close() error { return nil }
