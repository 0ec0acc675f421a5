// File: internal/index/search.go
package index

import (
	"context"

	"golang.org/x/sync/errgroup"

	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/query"
	"github.com/glintsearch/glint/internal/types"
)

// cancelCheckStride: workers poll the context every this many records.
const cancelCheckStride = 4096

// Result is one search hit.
type Result struct {
	// Volume is the volume ordinal, which orders results across volumes.
	Volume int

	Record types.FileRecord

	// Path is the reconstructed full path.
	Path string
}

// SearchOptions tune one search call.
type SearchOptions struct {
	// Limit caps the merged result count; results then come in scan
	// order, explicitly unstable. 0 means no caller limit.
	Limit int

	// MaxResults caps each shard's local result vector. 0 means the
	// default of 10000.
	MaxResults int

	// Parallel scans shards on their own workers.
	Parallel bool
}

// Search runs a compiled query over all shards. Without a limit, results
// come back ascending by (volume order, path). The context is polled in
// coarse strides; a cancelled search returns a Cancelled error.
func (ix *Index) Search(ctx context.Context, q *query.Query, opts SearchOptions) ([]Result, error) {
	if q.IsEmpty() {
		return nil, nil
	}

	shardCap := opts.MaxResults
	if shardCap <= 0 {
		shardCap = 10000
	}
	if opts.Limit > 0 && opts.Limit < shardCap {
		shardCap = opts.Limit
	}

	perShard := make([][]Result, len(ix.shards))

	if opts.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range ix.shards {
			i, s := i, s
			g.Go(func() error {
				res, err := ix.scanShard(gctx, s, q, shardCap)
				perShard[i] = res
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, s := range ix.shards {
			res, err := ix.scanShard(ctx, s, q, shardCap)
			if err != nil {
				return nil, err
			}
			perShard[i] = res
		}
	}

	var merged []Result
	for _, res := range perShard {
		merged = append(merged, res...)
	}

	if opts.Limit > 0 && len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	} else {
		sortResults(merged)
	}
	return merged, nil
}

// scanShard walks one shard's packed columns under its read lock. The
// pre-filter runs on column data alone; names and paths are only
// materialized for survivors.
func (ix *Index) scanShard(ctx context.Context, s *shard, q *query.Query, limit int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Result
	needsPath := q.NeedsPath()

	for local := 0; local < len(s.ids); local++ {
		if local%cancelCheckStride == 0 {
			select {
			case <-ctx.Done():
				return nil, glerrors.Cancelled("index.search")
			default:
			}
		}

		flags := s.flags[local]
		if flags.IsTombstone() {
			continue
		}
		if !q.PreFilter(flags, s.extHashes[local]) {
			continue
		}

		rec := ix.recordAtLocked(s, uint32(local))
		vol := s.vols[local]

		var path string
		pathFn := func() string {
			if path == "" {
				path = ix.pathOfLocked(vol, rec, s)
			}
			return path
		}
		if !q.Match(rec.Name, pathFn) {
			continue
		}

		if !needsPath && path == "" {
			path = ix.pathOfLocked(vol, rec, s)
		}
		out = append(out, Result{Volume: int(vol), Record: rec, Path: path})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
