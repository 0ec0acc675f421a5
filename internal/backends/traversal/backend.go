// File: internal/backends/traversal/backend.go
package traversal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/interfaces"
	"github.com/glintsearch/glint/internal/types"
)

// Backend is the slow-path fallback used when raw volume access is
// refused: it walks directories through the portable filesystem API and
// synthesizes record identity from paths. Watching uses fsnotify instead
// of the change journal.
type Backend struct {
	roots []string
	log   zerolog.Logger

	mu    sync.Mutex
	paths map[types.FileID]string // synthesized id -> path, for ResolveParent
}

// scanWorkers bounds the concurrent directory readers.
const scanWorkers = 8

// uuidNamespace namespaces synthesized volume serials.
var uuidNamespace = uuid.MustParse("9a9cd2e6-ffc4-4cde-9b4e-6f3b1c0e7c11")

// NewBackend creates a traversal backend over the given root paths. Each
// root is presented as one volume.
func NewBackend(roots []string, logger zerolog.Logger) *Backend {
	return &Backend{
		roots: roots,
		log:   logger,
		paths: make(map[types.FileID]string),
	}
}

// Name implements interfaces.Backend.
func (b *Backend) Name() string { return "traversal" }

// ListVolumes presents each configured root as a volume with a serial
// synthesized from its path.
func (b *Backend) ListVolumes() ([]types.VolumeInfo, error) {
	var volumes []types.VolumeInfo
	for _, root := range b.roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			b.log.Warn().Str("root", root).Msg("skipping unreadable traversal root")
			continue
		}
		id := uuid.NewSHA1(uuidNamespace, []byte(root))
		serial := uint64(0)
		for i := 0; i < 8; i++ {
			serial = serial<<8 | uint64(id[i])
		}
		letter := byte('T')
		if len(root) > 0 && root[0] >= 'A' && root[0] <= 'Z' {
			letter = root[0]
		}
		volumes = append(volumes, types.VolumeInfo{
			Letter:          letter,
			Mount:           ensureTrailingSep(root),
			Serial:          serial,
			Filesystem:      "generic",
			SupportsJournal: false,
		})
	}
	return volumes, nil
}

// PathID synthesizes a stable 64-bit record id from a path. The root id
// is pinned to the NTFS root sentinel so path resolution works unchanged.
func (b *Backend) PathID(vol types.VolumeInfo, path string) types.FileID {
	clean := strings.TrimRight(path, `\/`)
	mount := strings.TrimRight(vol.Mount, `\/`)
	if strings.EqualFold(clean, mount) {
		return types.RootDirectoryID
	}
	h := xxhash.Sum64String(strings.ToLower(clean)) & types.FileRefIndexMask
	// Avoid colliding with the reserved system range.
	if h < 16 {
		h += 16
	}
	return types.FileID(h)
}

// FullScan walks the volume root with a bounded worker pool. Directory
// listing parallelizes; emission is serialized through a channel so the
// iterator contract holds.
func (b *Backend) FullScan(ctx context.Context, vol types.VolumeInfo, sink interfaces.ProgressSink) (interfaces.RecordIterator, error) {
	root := strings.TrimRight(vol.Mount, `\/`)
	if _, err := os.Stat(root); err != nil {
		return nil, glerrors.Wrap(glerrors.KindIo, "traversal.scan", err)
	}
	if sink == nil {
		sink = interfaces.NopProgress{}
	}

	out := make(chan types.RawRecord, 1024)
	scanCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		// Breadth-first by level: each level's directories list in
		// parallel on a fresh bounded pool, so no task ever submits into
		// a saturated pool.
		level := []dirItem{{path: root, id: types.RootDirectoryID}}
		for len(level) > 0 {
			select {
			case <-scanCtx.Done():
				return
			default:
			}

			var nextMu sync.Mutex
			var next []dirItem
			p := pool.New().WithMaxGoroutines(scanWorkers)
			for _, item := range level {
				item := item
				p.Go(func() {
					sub := b.listDir(scanCtx, vol, item, out)
					nextMu.Lock()
					next = append(next, sub...)
					nextMu.Unlock()
				})
			}
			p.Wait()
			level = next
		}
	}()

	return &chanIterator{ch: out, cancel: cancel, sink: sink, volume: vol.Mount}, nil
}

type dirItem struct {
	path string
	id   types.FileID
}

// listDir emits one directory's entries and returns its subdirectories.
func (b *Backend) listDir(ctx context.Context, vol types.VolumeInfo,
	item dirItem, out chan<- types.RawRecord) []dirItem {

	entries, err := os.ReadDir(item.path)
	if err != nil {
		b.log.Debug().Str("dir", item.path).Err(err).Msg("unreadable directory skipped")
		return nil
	}

	var subdirs []dirItem
	for _, entry := range entries {
		path := filepath.Join(item.path, entry.Name())
		id := b.PathID(vol, path)
		b.mu.Lock()
		b.paths[id] = path
		b.mu.Unlock()

		rec := types.RawRecord{
			ID:       id,
			ParentID: item.id,
			Name:     entry.Name(),
		}
		if entry.IsDir() {
			rec.Flags |= types.FlagDirectory
		}
		if info, err := entry.Info(); err == nil {
			if !entry.IsDir() {
				rec.Size = uint64(info.Size())
			}
			rec.MTime = types.FiletimeFrom(info.ModTime())
		}
		if strings.HasPrefix(entry.Name(), ".") {
			rec.Flags |= types.FlagHidden
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			return nil
		}

		if entry.IsDir() {
			subdirs = append(subdirs, dirItem{path: path, id: id})
		}
	}
	return subdirs
}

// ResolveParent serves path-resolution lookups from the synthesized id
// table built during the scan.
func (b *Backend) ResolveParent(vol types.VolumeInfo, id types.FileID) (*types.RawRecord, error) {
	b.mu.Lock()
	path, ok := b.paths[id]
	b.mu.Unlock()
	if !ok {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil
	}
	rec := &types.RawRecord{
		ID:       id,
		ParentID: b.PathID(vol, filepath.Dir(path)),
		Name:     filepath.Base(path),
		MTime:    types.FiletimeFrom(info.ModTime()),
	}
	if info.IsDir() {
		rec.Flags |= types.FlagDirectory
	}
	return rec, nil
}

// chanIterator adapts the scan channel to the iterator contract.
type chanIterator struct {
	ch     <-chan types.RawRecord
	cancel context.CancelFunc
	sink   interfaces.ProgressSink
	volume string
	count  uint64
	closed bool
}

func (it *chanIterator) Next() (*types.RawRecord, error) {
	rec, ok := <-it.ch
	if !ok {
		it.sink.Report(interfaces.Progress{Phase: "scanning", Volume: it.volume, Processed: it.count})
		return nil, nil
	}
	it.count++
	if it.count%10000 == 0 {
		it.sink.Report(interfaces.Progress{Phase: "scanning", Volume: it.volume, Processed: it.count})
	}
	return &rec, nil
}

func (it *chanIterator) Close() error {
	if !it.closed {
		it.closed = true
		it.cancel()
		// Drain so the producer pool can exit.
		for range it.ch {
		}
	}
	return nil
}

func ensureTrailingSep(p string) string {
	if strings.HasSuffix(p, `\`) || strings.HasSuffix(p, "/") {
		return p
	}
	return p + string(os.PathSeparator)
}
