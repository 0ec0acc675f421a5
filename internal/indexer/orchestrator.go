// File: internal/indexer/orchestrator.go
package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/glintsearch/glint/internal/config"
	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/index"
	"github.com/glintsearch/glint/internal/interfaces"
	"github.com/glintsearch/glint/internal/journal"
	"github.com/glintsearch/glint/internal/resolver"
	"github.com/glintsearch/glint/internal/snapshot"
	"github.com/glintsearch/glint/internal/types"
)

const (
	// batchWindow / batchLimit: watch-mode mutations apply at most every
	// window or this many buffered events, whichever comes first.
	batchWindow = 100 * time.Millisecond
	batchLimit  = 4096

	// insertChunk: scan records stream into the index in chunks of this
	// size so searches interleave with indexing.
	insertChunk = 8192

	// DefaultGrace bounds shutdown.
	DefaultGrace = 5 * time.Second
)

// Orchestrator drives the full-scan and live-update pipeline: the only
// state machine in the system. It owns the index value; consumers reach
// it through Index() for searches and through the Status handle for
// observability.
type Orchestrator struct {
	primary  interfaces.Backend
	fallback interfaces.Backend
	store    *snapshot.Store
	cfg      *config.Config
	excluder *config.Excluder
	log      zerolog.Logger
	status   *Status

	grace time.Duration

	mu sync.RWMutex
	ix *index.Index

	// volumeBackend remembers which backend serves each mount after a
	// privilege downgrade.
	volumeBackend map[string]interfaces.Backend
}

// New creates an orchestrator. fallback may be nil when no downgrade
// path exists.
func New(primary, fallback interfaces.Backend, store *snapshot.Store,
	cfg *config.Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		primary:       primary,
		fallback:      fallback,
		store:         store,
		cfg:           cfg,
		excluder:      config.NewExcluder(cfg.Exclude),
		log:           logger,
		status:        NewStatus(),
		grace:         DefaultGrace,
		ix:            index.New(0),
		volumeBackend: make(map[string]interfaces.Backend),
	}
}

// Status returns the shared observable handle.
func (o *Orchestrator) Status() *Status { return o.status }

// SnapshotPath returns the snapshot file location.
func (o *Orchestrator) SnapshotPath() string { return o.store.Path() }

// ClearSnapshot deletes the persisted snapshot and its backup.
func (o *Orchestrator) ClearSnapshot() error { return o.store.Clear() }

// Index returns the current index value for searching.
func (o *Orchestrator) Index() *index.Index {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ix
}

func (o *Orchestrator) setIndex(ix *index.Index) {
	o.mu.Lock()
	o.ix = ix
	o.mu.Unlock()
	o.status.setCount(ix.Count())
}

// Load enters Loading: it reads the snapshot and adopts it. On a version
// or checksum mismatch the file is deleted and the error returned so the
// caller proceeds to Scanning.
func (o *Orchestrator) Load() error {
	o.status.setState(StateLoading)
	o.status.setMessage("loading snapshot")
	defer o.status.setState(StateIdle)

	ix, err := o.store.Load()
	if err != nil {
		if glerrors.IsKind(err, glerrors.KindSnapshotIncompatible) ||
			glerrors.IsKind(err, glerrors.KindCorrupt) {
			o.log.Warn().Err(err).Msg("snapshot unusable, deleting; full rescan required")
			_ = o.store.Clear()
		}
		return err
	}
	o.setIndex(ix)
	o.status.setMessage(fmt.Sprintf("loaded %d records", ix.Count()))
	return nil
}

// Save enters Persisting and writes the snapshot.
func (o *Orchestrator) Save() error {
	o.status.setState(StatePersisting)
	o.status.setMessage("persisting index")
	defer o.status.setState(StateIdle)
	return o.store.Save(o.Index())
}

// listVolumes enumerates indexable volumes, downgrading to the fallback
// backend when the primary cannot serve this host.
func (o *Orchestrator) listVolumes() ([]types.VolumeInfo, interfaces.Backend, error) {
	vols, err := o.primary.ListVolumes()
	if err == nil {
		return o.filterVolumes(vols), o.primary, nil
	}
	if o.fallback != nil && (glerrors.IsKind(err, glerrors.KindUnsupported) ||
		glerrors.IsKind(err, glerrors.KindPermissionDenied)) {
		o.log.Warn().Err(err).Str("fallback", o.fallback.Name()).
			Msg("primary backend unavailable, downgrading")
		vols, err = o.fallback.ListVolumes()
		if err != nil {
			return nil, nil, err
		}
		return o.filterVolumes(vols), o.fallback, nil
	}
	return nil, nil, err
}

func (o *Orchestrator) filterVolumes(vols []types.VolumeInfo) []types.VolumeInfo {
	var out []types.VolumeInfo
	for _, v := range vols {
		if o.cfg.ShouldIndexVolume(v.Mount) {
			out = append(out, v)
		}
	}
	return out
}

// Rebuild enters Scanning: full scans run one volume at a time, then
// Persisting. An empty mounts filter scans every configured volume.
func (o *Orchestrator) Rebuild(ctx context.Context, mounts []string) error {
	vols, backend, err := o.listVolumes()
	if err != nil {
		return err
	}
	if len(mounts) > 0 {
		vols = selectMounts(vols, mounts)
	}

	o.status.setState(StateScanning)
	fresh := index.New(0)
	for i, vol := range vols {
		o.status.setVolume(vol.Mount, i+1, len(vols))
		if err := o.scanVolume(ctx, fresh, backend, vol); err != nil {
			o.status.setState(StateIdle)
			return err
		}
	}
	o.setIndex(fresh)
	o.status.setMessage(fmt.Sprintf("indexed %d records", fresh.Count()))

	return o.Save()
}

// rescanVolume rebuilds one volume in place after journal loss.
func (o *Orchestrator) rescanVolume(ctx context.Context, mount string) error {
	vols, backend, err := o.listVolumes()
	if err != nil {
		return err
	}
	for _, vol := range vols {
		if vol.Mount != mount {
			continue
		}
		ix := o.Index()
		vord := ix.AddVolume(vol)
		ix.RemoveVolume(vord)
		o.status.setState(StateScanning)
		o.status.setVolume(vol.Mount, 1, 1)
		if err := o.scanVolume(ctx, ix, backend, vol); err != nil {
			o.status.setState(StateIdle)
			return err
		}
		o.status.setCount(ix.Count())
		return o.Save()
	}
	return glerrors.New(glerrors.KindIo, "indexer.rescan", "volume %s not found", mount)
}

// scanVolume streams one volume's records through the path resolver into
// the target index, downgrading the backend on privilege errors.
func (o *Orchestrator) scanVolume(ctx context.Context, ix *index.Index,
	backend interfaces.Backend, vol types.VolumeInfo) error {

	it, err := backend.FullScan(ctx, vol, o.progressSink())
	if err != nil && o.fallback != nil && backend != o.fallback &&
		(glerrors.IsKind(err, glerrors.KindUnsupported) ||
			glerrors.IsKind(err, glerrors.KindPermissionDenied)) {
		o.log.Warn().Err(err).Str("volume", vol.Mount).
			Msg("fast scan unavailable, falling back to traversal")
		backend = o.fallback
		it, err = backend.FullScan(ctx, vol, o.progressSink())
	}
	if err != nil {
		return err
	}
	defer it.Close()

	o.mu.Lock()
	o.volumeBackend[vol.Mount] = backend
	o.mu.Unlock()

	vord := ix.AddVolume(vol)
	res := resolver.New(vol.Mount, func(id types.FileID) (*types.RawRecord, error) {
		return backend.ResolveParent(vol, id)
	})

	var batch []types.FileRecord
	flush := func() {
		if len(batch) > 0 {
			ix.InsertBatch(vord, batch)
			batch = batch[:0]
			o.status.setCount(ix.Count())
		}
	}
	add := func(resolved []resolver.Resolved) {
		for _, r := range resolved {
			if !o.excluder.Empty() && o.excluder.Excluded(r.Path, r.Record.Name) {
				continue
			}
			batch = append(batch, r.Record)
		}
	}

	for {
		raw, err := it.Next()
		if err != nil {
			return err
		}
		if raw == nil {
			break
		}
		add(res.Add(*raw))
		if len(batch) >= insertChunk {
			flush()
		}
	}
	add(res.Flush())
	flush()

	o.log.Info().Str("volume", vol.Mount).Uint64("records", ix.Count()).
		Msg("volume scan complete")
	return nil
}

// Watch enters Watching: it attaches a change stream per volume and
// applies coalesced batches until the context ends. Journal loss on a
// volume transitions through Scanning for that volume only and back to
// Watching. Blocks until shutdown completes.
func (o *Orchestrator) Watch(ctx context.Context) error {
	for {
		err := o.watchOnce(ctx)
		if err == nil {
			return nil // clean shutdown
		}
		var lost *journalLostError
		if !asJournalLost(err, &lost) {
			return err
		}
		o.log.Warn().Str("volume", lost.mount).Msg("journal lost, rescanning volume")
		if err := o.rescanVolume(ctx, lost.mount); err != nil {
			return err
		}
	}
}

// journalLostError tags journal loss with the affected volume.
type journalLostError struct {
	mount string
	err   error
}

func (e *journalLostError) Error() string { return e.err.Error() }
func (e *journalLostError) Unwrap() error { return e.err }

func asJournalLost(err error, target **journalLostError) bool {
	for err != nil {
		if jl, ok := err.(*journalLostError); ok {
			*target = jl
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// taggedEvent carries the originating volume ordinal alongside the event.
type taggedEvent struct {
	vol   int
	mount string
	ev    interfaces.ChangeEvent
}

// watchOnce runs one Watching episode: nil on clean shutdown, a
// journalLostError when a volume needs rescanning.
func (o *Orchestrator) watchOnce(ctx context.Context) error {
	ix := o.Index()
	vols := ix.Volumes()
	if len(vols) == 0 {
		return glerrors.New(glerrors.KindIo, "indexer.watch", "no indexed volumes to watch")
	}

	o.status.setState(StateWatching)
	o.status.setMessage("watching for changes")
	defer o.status.setState(StateIdle)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	merged := make(chan taggedEvent, batchLimit)
	failures := make(chan *journalLostError, len(vols))
	var wg sync.WaitGroup
	var handles []interfaces.WatchHandle

	for vord, vs := range vols {
		backend := o.backendFor(vs.Info.Mount)
		handle, err := backend.OpenWatch(wctx, vs.Info, ix.LastUSN(vord))
		if err != nil {
			if glerrors.IsKind(err, glerrors.KindJournalLost) {
				closeAll(handles)
				wgWaitGrace(&wg, o.grace)
				return &journalLostError{mount: vs.Info.Mount, err: err}
			}
			closeAll(handles)
			wgWaitGrace(&wg, o.grace)
			return err
		}
		handles = append(handles, handle)

		wg.Add(1)
		go func(vord int, mount string, h interfaces.WatchHandle) {
			defer wg.Done()
			for ev := range h.Events() {
				select {
				case merged <- taggedEvent{vol: vord, mount: mount, ev: ev}:
				case <-wctx.Done():
					return
				}
			}
			if err := h.Err(); err != nil && glerrors.IsKind(err, glerrors.KindJournalLost) {
				select {
				case failures <- &journalLostError{mount: mount, err: err}:
				default:
				}
			}
		}(vord, vs.Info.Mount, handle)
	}

	coalescers := make(map[int]*journal.Coalescer, len(vols))
	for vord := range vols {
		coalescers[vord] = journal.NewCoalescer(batchWindow)
	}

	apply := func() {
		for vord, c := range coalescers {
			if muts := c.Collect(); len(muts) > 0 {
				ix.ApplyMutations(vord, muts)
				o.status.setCount(ix.Count())
			}
		}
	}

	ticker := time.NewTicker(batchWindow)
	defer ticker.Stop()
	buffered := 0

	shutdown := func() {
		o.status.setState(StateStopping)
		cancel()
		closeAll(handles)
		wgWaitGrace(&wg, o.grace)
		for vord, c := range coalescers {
			if muts := c.Drain(); len(muts) > 0 {
				ix.ApplyMutations(vord, muts)
			}
		}
		_ = o.Save()
	}

	for {
		select {
		case <-ctx.Done():
			shutdown()
			return nil

		case fail := <-failures:
			shutdown()
			return fail

		case te := <-merged:
			coalescers[te.vol].Add(te.ev)
			buffered++
			if buffered >= batchLimit {
				apply()
				buffered = 0
			}

		case <-ticker.C:
			apply()
			buffered = 0
		}
	}
}

// backendFor returns the backend that scanned a mount, defaulting to the
// primary.
func (o *Orchestrator) backendFor(mount string) interfaces.Backend {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if b, ok := o.volumeBackend[mount]; ok {
		return b
	}
	return o.primary
}

// progressSink publishes backend progress into the status handle.
func (o *Orchestrator) progressSink() interfaces.ProgressSink {
	return statusSink{status: o.status}
}

type statusSink struct {
	status *Status
}

func (s statusSink) Report(p interfaces.Progress) {
	if p.Total > 0 {
		s.status.setProgress(int(p.Processed * 100 / p.Total))
	}
	s.status.setMessage(fmt.Sprintf("%s %s: %d", p.Phase, p.Volume, p.Processed))
}

func selectMounts(vols []types.VolumeInfo, mounts []string) []types.VolumeInfo {
	var out []types.VolumeInfo
	for _, v := range vols {
		for _, m := range mounts {
			if equalMount(v.Mount, m) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

func equalMount(a, b string) bool {
	trim := func(s string) string {
		for len(s) > 0 && (s[len(s)-1] == '\\' || s[len(s)-1] == '/') {
			s = s[:len(s)-1]
		}
		return s
	}
	ta, tb := trim(a), trim(b)
	if len(ta) != len(tb) {
		return false
	}
	for i := range ta {
		ca, cb := ta[i], tb[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func closeAll(handles []interfaces.WatchHandle) {
	for _, h := range handles {
		_ = h.Close()
	}
}

// wgWaitGrace waits for the group up to the grace period, then abandons
// the stragglers (process exit is assumed after Stopping).
func wgWaitGrace(wg *sync.WaitGroup, grace time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
}
