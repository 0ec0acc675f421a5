// File: pkg/app/app.go
package app

import (
	"context"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/glintsearch/glint/internal/backends/ntfs"
	"github.com/glintsearch/glint/internal/backends/traversal"
	"github.com/glintsearch/glint/internal/config"
	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/index"
	"github.com/glintsearch/glint/internal/indexer"
	"github.com/glintsearch/glint/internal/interfaces"
	"github.com/glintsearch/glint/internal/query"
	"github.com/glintsearch/glint/internal/snapshot"
)

// App is the core handle consumed by the CLI and other shells. It owns
// the orchestrator (and through it the index) and exposes the search
// surface plus the observable status.
type App struct {
	Config *config.Config

	orch *indexer.Orchestrator
	log  zerolog.Logger
}

// ResultRow is one search hit in API form.
type ResultRow struct {
	Name     string    `json:"name"`
	FullPath string    `json:"full_path"`
	Size     uint64    `json:"size"`
	MTime    time.Time `json:"mtime"`
	IsDir    bool      `json:"is_dir"`
}

// Options configure App construction.
type Options struct {
	// ConfigPath overrides config discovery.
	ConfigPath string

	// IndexPath overrides the snapshot location.
	IndexPath string

	// Backend overrides backend selection (tests).
	Backend interfaces.Backend

	// Fallback overrides the downgrade backend (tests).
	Fallback interfaces.Backend

	Logger zerolog.Logger
}

// New loads configuration, probes the platform for the fast backend, and
// assembles the orchestrator.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	indexPath := cfg.IndexPath()
	if opts.IndexPath != "" {
		indexPath = opts.IndexPath
	}

	logger := opts.Logger

	primary := opts.Backend
	fallback := opts.Fallback
	if primary == nil {
		primary = ntfs.NewBackend(logger)
	}
	if fallback == nil {
		fallback = traversal.NewBackend(defaultTraversalRoots(), logger)
	}

	store := snapshot.NewStore(indexPath, snapshot.Options{
		Compress: cfg.Performance.CompressIndex,
		Zstd:     cfg.Performance.CompressIndex,
	}, logger)

	return &App{
		Config: cfg,
		orch:   indexer.New(primary, fallback, store, cfg, logger),
		log:    logger,
	}, nil
}

// defaultTraversalRoots picks the traversal fallback's scan roots for
// hosts without raw NTFS access.
func defaultTraversalRoots() []string {
	if runtime.GOOS == "windows" {
		return []string{`C:\`}
	}
	return []string{"/"}
}

// Status exposes the observable properties handle.
func (a *App) Status() *indexer.Status { return a.orch.Status() }

// BuildIndex performs a full scan of the given mounts (all configured
// volumes when empty) and persists the snapshot.
func (a *App) BuildIndex(ctx context.Context, mounts []string) error {
	return a.orch.Rebuild(ctx, mounts)
}

// LoadIndex loads the snapshot from disk.
func (a *App) LoadIndex() error {
	return a.orch.Load()
}

// LoadOrBuild loads the snapshot, falling back to a full scan when the
// snapshot is missing, corrupt, or incompatible.
func (a *App) LoadOrBuild(ctx context.Context) error {
	err := a.orch.Load()
	if err == nil {
		return nil
	}
	a.log.Warn().Err(err).Msg("snapshot unavailable, building index")
	return a.orch.Rebuild(ctx, nil)
}

// SaveIndex persists the current index.
func (a *App) SaveIndex() error {
	return a.orch.Save()
}

// Watch tails the change journals of all indexed volumes until the
// context ends, rescanning on journal loss.
func (a *App) Watch(ctx context.Context) error {
	return a.orch.Watch(ctx)
}

// QueryFilters are the flag-driven filters layered onto a query string.
type QueryFilters struct {
	Extensions []string
	FilesOnly  bool
	DirsOnly   bool
}

// Query parses and runs a search. limit 0 means the configured default
// cap applies with stable (volume, path) ordering.
func (a *App) Query(ctx context.Context, text string, filters QueryFilters, limit int) ([]ResultRow, error) {
	input := text
	if len(filters.Extensions) > 0 {
		input += " ext:" + strings.Join(filters.Extensions, ",")
	}
	if filters.FilesOnly {
		input += " file:"
	}
	if filters.DirsOnly {
		input += " dir:"
	}

	q, err := query.Parse(input)
	if err != nil {
		return nil, err
	}

	results, err := a.orch.Index().Search(ctx, q, index.SearchOptions{
		Limit:      limit,
		MaxResults: a.Config.General.MaxResults,
		Parallel:   a.Config.Performance.ParallelSearch,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]ResultRow, len(results))
	for i, r := range results {
		rows[i] = ResultRow{
			Name:     r.Record.Name,
			FullPath: r.Path,
			Size:     r.Record.Size,
			MTime:    r.Record.MTime.Time(),
			IsDir:    r.Record.IsDir(),
		}
	}
	return rows, nil
}

// Stats reports current index statistics.
func (a *App) Stats() index.Stats {
	return a.orch.Index().ComputeStats()
}

// Volumes reports the indexed volumes with their journal cursors.
func (a *App) Volumes() []index.VolumeState {
	return a.orch.Index().Volumes()
}

// SnapshotPath returns the snapshot file location.
func (a *App) SnapshotPath() string {
	return a.orch.SnapshotPath()
}

// Clear deletes the snapshot and empties the in-memory index.
func (a *App) Clear() error {
	a.orch.Index().Clear()
	return a.orch.ClearSnapshot()
}

// ExitCode maps an error to the CLI exit code contract: 0 success,
// 2 usage, 3 permission or backend unsupported, 4 journal lost,
// 5 corrupt snapshot, 1 anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch glerrors.KindOf(err) {
	case glerrors.KindInvalidQuery:
		return 2
	case glerrors.KindPermissionDenied, glerrors.KindUnsupported:
		return 3
	case glerrors.KindJournalLost:
		return 4
	case glerrors.KindSnapshotIncompatible, glerrors.KindCorrupt:
		return 5
	default:
		return 1
	}
}
