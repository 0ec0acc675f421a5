// File: internal/snapshot/store.go
package snapshot

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/index"
)

// Store persists snapshots at a fixed path with atomic replace and a
// one-deep backup rotation.
type Store struct {
	path string
	opts Options
	log  zerolog.Logger
}

// NewStore creates a store writing to path.
func NewStore(path string, opts Options, logger zerolog.Logger) *Store {
	return &Store{path: path, opts: opts, log: logger}
}

// Path returns the snapshot file location.
func (st *Store) Path() string { return st.path }

func (st *Store) backupPath() string { return st.path + ".bak" }
func (st *Store) tempPath() string   { return st.path + ".tmp" }

// Exists reports whether a snapshot file is present.
func (st *Store) Exists() bool {
	_, err := os.Stat(st.path)
	return err == nil
}

// Save encodes the index and replaces the snapshot atomically: write to a
// temp file, rotate the old snapshot to .bak, rename the temp into place.
func (st *Store) Save(ix *index.Index) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return glerrors.Wrap(glerrors.KindIo, "snapshot.save", err)
	}

	data, err := Encode(ix, st.opts)
	if err != nil {
		return err
	}

	tmp := st.tempPath()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return glerrors.Wrap(glerrors.KindIo, "snapshot.save", err)
	}

	if st.Exists() {
		_ = os.Remove(st.backupPath())
		_ = os.Rename(st.path, st.backupPath())
	}
	if err := os.Rename(tmp, st.path); err != nil {
		return glerrors.Wrap(glerrors.KindIo, "snapshot.save", err)
	}

	st.log.Info().Str("path", st.path).Int("bytes", len(data)).
		Uint64("records", ix.Count()).Msg("snapshot saved")
	return nil
}

// Load reads and decodes the snapshot. On a corrupt or incompatible main
// file it tries the backup before giving up with the original error.
func (st *Store) Load() (*index.Index, error) {
	ix, err := st.loadFile(st.path)
	if err == nil {
		return ix, nil
	}
	if glerrors.IsKind(err, glerrors.KindIo) {
		return nil, err
	}

	if bix, berr := st.loadFile(st.backupPath()); berr == nil {
		st.log.Warn().Err(err).Msg("snapshot unreadable, restored from backup")
		return bix, nil
	}
	return nil, err
}

func (st *Store) loadFile(path string) (*index.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, glerrors.Wrap(glerrors.KindIo, "snapshot.load", err)
	}
	ix, err := Decode(data)
	if err != nil {
		return nil, err
	}
	st.log.Info().Str("path", path).Uint64("records", ix.Count()).Msg("snapshot loaded")
	return ix, nil
}

// Clear deletes the snapshot and its backup.
func (st *Store) Clear() error {
	var first error
	for _, p := range []string{st.path, st.backupPath(), st.tempPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && first == nil {
			first = glerrors.Wrap(glerrors.KindIo, "snapshot.clear", err)
		}
	}
	return first
}
