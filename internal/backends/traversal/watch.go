// File: internal/backends/traversal/watch.go
package traversal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/interfaces"
	"github.com/glintsearch/glint/internal/types"
)

// eventChannelSize bounds the delivery channel, matching the journal
// backend's backpressure policy: overflow reports JournalLost and the
// orchestrator rescans.
const eventChannelSize = 65536

// maxWatchedDirs caps how many directories get an fsnotify watch.
const maxWatchedDirs = 4096

// fsWatch adapts fsnotify to the change-stream contract. Sequence
// numbers are synthesized monotonically since the portable API has no
// journal.
type fsWatch struct {
	events  chan interfaces.ChangeEvent
	errVal  error
	done    chan struct{}
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher
}

func (w *fsWatch) Events() <-chan interfaces.ChangeEvent { return w.events }

func (w *fsWatch) Err() error {
	select {
	case <-w.done:
		return w.errVal
	default:
		return nil
	}
}

func (w *fsWatch) Close() error {
	w.cancel()
	<-w.done
	return nil
}

// OpenWatch watches the volume's directory tree. sinceUSN is ignored:
// the portable watcher only reports changes made after it opens; earlier
// changes are not replayed.
func (b *Backend) OpenWatch(ctx context.Context, vol types.VolumeInfo, sinceUSN uint64) (interfaces.WatchHandle, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, glerrors.Wrap(glerrors.KindIo, "traversal.watch", err)
	}

	root := strings.TrimRight(vol.Mount, `\/`)
	watched := 0
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if watched >= maxWatchedDirs {
			return filepath.SkipAll
		}
		if watcher.Add(path) == nil {
			watched++
		}
		return nil
	})
	b.log.Debug().Int("dirs", watched).Str("volume", vol.Mount).Msg("watching directories")

	wctx, cancel := context.WithCancel(ctx)
	w := &fsWatch{
		events:  make(chan interfaces.ChangeEvent, eventChannelSize),
		done:    make(chan struct{}),
		cancel:  cancel,
		watcher: watcher,
	}

	go func() {
		defer close(w.done)
		defer close(w.events)
		defer watcher.Close()
		w.errVal = b.watchLoop(wctx, vol, watcher, w.events)
	}()

	return w, nil
}

func (b *Backend) watchLoop(ctx context.Context, vol types.VolumeInfo,
	watcher *fsnotify.Watcher, out chan<- interfaces.ChangeEvent) error {

	var seq atomic.Uint64

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			b.log.Warn().Err(err).Msg("watcher error")

		case fe, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			ev, valid := b.translate(vol, fe, seq.Add(1))
			if !valid {
				continue
			}

			select {
			case out <- ev:
			default:
				return glerrors.New(glerrors.KindJournalLost, "traversal.watch",
					"event channel overflow on %s", vol.Mount)
			}

			// New directories join the watch set so nested changes keep
			// flowing.
			if fe.Has(fsnotify.Create) {
				if info, err := os.Stat(fe.Name); err == nil && info.IsDir() {
					_ = watcher.Add(fe.Name)
				}
			}
		}
	}
}

// translate maps one fsnotify event to a change event with synthesized
// identity and journal-style reason bits.
func (b *Backend) translate(vol types.VolumeInfo, fe fsnotify.Event, seq uint64) (interfaces.ChangeEvent, bool) {
	name := filepath.Base(fe.Name)
	parent := b.PathID(vol, filepath.Dir(fe.Name))

	ev := interfaces.ChangeEvent{
		USN:      seq,
		ID:       b.PathID(vol, fe.Name),
		ParentID: parent,
		Name:     name,
	}

	switch {
	case fe.Has(fsnotify.Create):
		ev.Reason = interfaces.ReasonFileCreate | interfaces.ReasonClose
		if info, err := os.Stat(fe.Name); err == nil {
			ev.IsDir = info.IsDir()
		}
	case fe.Has(fsnotify.Remove):
		ev.Reason = interfaces.ReasonFileDelete | interfaces.ReasonClose
	case fe.Has(fsnotify.Rename):
		// fsnotify reports the old path; the new path arrives as a
		// separate Create. Treat the old name as a delete.
		ev.Reason = interfaces.ReasonFileDelete | interfaces.ReasonClose
	case fe.Has(fsnotify.Write):
		ev.Reason = interfaces.ReasonDataOverwrite | interfaces.ReasonClose
		if info, err := os.Stat(fe.Name); err == nil {
			ev.Time = types.FiletimeFrom(info.ModTime())
		}
	default:
		return ev, false
	}
	return ev, true
}
