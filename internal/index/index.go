// File: internal/index/index.go
package index

import (
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/glintsearch/glint/internal/journal"
	"github.com/glintsearch/glint/internal/types"
)

// DefaultShardCount returns the shard count for this machine.
func DefaultShardCount() int {
	n := runtime.NumCPU()
	if n < 8 {
		return 8
	}
	return n
}

// VolumeState is one indexed volume plus its journal cursor.
type VolumeState struct {
	Info types.VolumeInfo

	// LastUSN is the last change-journal position applied to the index.
	LastUSN uint64
}

// Index stores file records partitioned into shards by id and serves
// concurrent searches while a single writer applies changes. The
// generation counter increments on every applied batch.
type Index struct {
	shards []*shard

	mu      sync.RWMutex
	volumes []*VolumeState

	generation atomic.Uint64

	// pathCacheMu guards the bounded path cache used by on-demand path
	// reconstruction.
	pathCacheMu sync.Mutex
	pathCache   map[pathCacheKey]string
	pathCacheCap int
}

type pathCacheKey struct {
	vol uint16
	id  types.FileID
}

// New creates an empty index with the given shard count; 0 means
// DefaultShardCount.
func New(shardCount int) *Index {
	if shardCount <= 0 {
		shardCount = DefaultShardCount()
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = newShard()
	}
	return &Index{
		shards:       shards,
		pathCache:    make(map[pathCacheKey]string),
		pathCacheCap: 1 << 16,
	}
}

// ShardCount returns the number of shards.
func (ix *Index) ShardCount() int { return len(ix.shards) }

// Generation returns the monotone batch counter.
func (ix *Index) Generation() uint64 { return ix.generation.Load() }

// shardFor selects a shard from the id's low bits.
func (ix *Index) shardFor(id types.FileID) *shard {
	return ix.shards[uint64(id)%uint64(len(ix.shards))]
}

// AddVolume registers a volume and returns its ordinal. Re-registering a
// known mount returns the existing ordinal.
func (ix *Index) AddVolume(info types.VolumeInfo) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, v := range ix.volumes {
		if v.Info.Mount == info.Mount {
			v.Info = info
			return i
		}
	}
	ix.volumes = append(ix.volumes, &VolumeState{Info: info})
	return len(ix.volumes) - 1
}

// Volumes returns a snapshot of the volume states.
func (ix *Index) Volumes() []VolumeState {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]VolumeState, len(ix.volumes))
	for i, v := range ix.volumes {
		out[i] = *v
	}
	return out
}

// SetLastUSN records the journal cursor for a volume.
func (ix *Index) SetLastUSN(vol int, usn uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if vol >= 0 && vol < len(ix.volumes) {
		ix.volumes[vol].LastUSN = usn
	}
}

// LastUSN returns the journal cursor for a volume.
func (ix *Index) LastUSN(vol int) uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if vol >= 0 && vol < len(ix.volumes) {
		return ix.volumes[vol].LastUSN
	}
	return 0
}

// Count returns the number of live records.
func (ix *Index) Count() uint64 {
	var n uint64
	for _, s := range ix.shards {
		s.mu.RLock()
		n += uint64(s.liveLocked())
		s.mu.RUnlock()
	}
	return n
}

// InsertBatch adds scan records for a volume. Records are grouped per
// shard and each shard's lock is taken once, in shard order, releasing
// between shards so searches interleave.
func (ix *Index) InsertBatch(vol int, records []types.FileRecord) {
	v := uint16(vol)
	byShard := make(map[*shard][]types.FileRecord, len(ix.shards))
	for _, rec := range records {
		s := ix.shardFor(rec.ID)
		byShard[s] = append(byShard[s], rec)
	}
	for _, s := range ix.shards {
		batch, ok := byShard[s]
		if !ok {
			continue
		}
		s.mu.Lock()
		for _, rec := range batch {
			s.append(v, rec)
		}
		s.mu.Unlock()
	}
	ix.generation.Add(1)
}

// ApplyMutations applies one coalesced journal batch for a volume:
// creates, renames, tombstones, and metadata updates, then advances the
// volume's USN cursor and runs any due compactions.
func (ix *Index) ApplyMutations(vol int, muts []journal.Mutation) {
	if len(muts) == 0 {
		return
	}
	v := uint16(vol)
	var maxUSN uint64

	for _, m := range muts {
		if m.USN > maxUSN {
			maxUSN = m.USN
		}
		s := ix.shardFor(m.ID)
		s.mu.Lock()
		switch m.Kind {
		case journal.MutationCreate:
			s.append(v, mutationRecord(m))
		case journal.MutationRename:
			if local, ok := s.lookup(v, m.ID, 0); ok {
				rec := ix.recordAtLocked(s, local)
				rec.Name = m.Name
				rec.ParentID = m.ParentID
				rec.ExtHash = types.ExtensionHash(m.Name)
				if m.Time != 0 {
					rec.MTime = m.Time
				}
				s.updateAt(local, rec)
			} else {
				s.append(v, mutationRecord(m))
			}
		case journal.MutationDelete:
			s.tombstoneAll(v, m.ID)
		case journal.MutationModify:
			if local, ok := s.lookup(v, m.ID, 0); ok {
				if m.Time != 0 {
					s.mtimes[local] = m.Time
				}
			}
		}
		s.mu.Unlock()
		if m.IsDir && (m.Kind == journal.MutationRename || m.Kind == journal.MutationDelete) {
			ix.clearPathCache()
		}
	}

	if maxUSN > 0 {
		ix.SetLastUSN(vol, maxUSN)
	}
	ix.generation.Add(1)
	ix.Compact()
}

func mutationRecord(m journal.Mutation) types.FileRecord {
	flags := types.RecordFlags(0)
	if m.IsDir {
		flags |= types.FlagDirectory
	}
	return types.FileRecord{
		ID:       m.ID,
		ParentID: m.ParentID,
		Name:     m.Name,
		Flags:    flags,
		MTime:    m.Time,
		ExtHash:  types.ExtensionHash(m.Name),
	}
}

// recordAtLocked materializes a FileRecord from shard columns. Caller
// holds the shard lock.
func (ix *Index) recordAtLocked(s *shard, local uint32) types.FileRecord {
	return types.FileRecord{
		ID:        s.ids[local],
		ParentID:  s.parents[local],
		Name:      s.name(local),
		NameIndex: s.nameIdxs[local],
		Flags:     s.flags[local],
		Size:      s.sizes[local],
		MTime:     s.mtimes[local],
		ExtHash:   s.extHashes[local],
	}
}

// RemoveVolume drops every record of the volume, keeping the volume
// registration so a rescan can refill it.
func (ix *Index) RemoveVolume(vol int) {
	v := uint16(vol)
	for _, s := range ix.shards {
		s.mu.Lock()
		s.dropVolume(v)
		s.mu.Unlock()
	}
	ix.pathCacheMu.Lock()
	for k := range ix.pathCache {
		if k.vol == v {
			delete(ix.pathCache, k)
		}
	}
	ix.pathCacheMu.Unlock()
	ix.generation.Add(1)
}

// Compact rewrites shards whose tombstone fraction exceeds the threshold.
func (ix *Index) Compact() {
	for _, s := range ix.shards {
		s.mu.RLock()
		due := s.needsCompaction()
		s.mu.RUnlock()
		if due {
			s.mu.Lock()
			if s.needsCompaction() {
				s.compact()
			}
			s.mu.Unlock()
		}
	}
}

// Clear drops everything.
func (ix *Index) Clear() {
	for _, s := range ix.shards {
		s.mu.Lock()
		s.reset()
		s.mu.Unlock()
	}
	ix.mu.Lock()
	ix.volumes = nil
	ix.mu.Unlock()
	ix.pathCacheMu.Lock()
	ix.pathCache = make(map[pathCacheKey]string)
	ix.pathCacheMu.Unlock()
	ix.generation.Add(1)
}

// PathOf reconstructs the full path of a record by walking parent ids
// through the shards, memoized in the bounded path cache. Orphans and
// records whose chain broke resolve under the orphan prefix.
func (ix *Index) PathOf(vol int, rec types.FileRecord) string {
	if rec.Flags.IsOrphan() {
		return types.OrphanPrefix + `\` + rec.Name
	}
	prefix, ok := ix.dirPath(uint16(vol), rec.ParentID, nil)
	if !ok {
		return types.OrphanPrefix + `\` + rec.Name
	}
	return prefix + `\` + rec.Name
}

// pathOfLocked is PathOf for use inside a shard scan: held is the shard
// whose read lock the caller already holds, accessed without re-locking.
func (ix *Index) pathOfLocked(vol uint16, rec types.FileRecord, held *shard) string {
	if rec.Flags.IsOrphan() {
		return types.OrphanPrefix + `\` + rec.Name
	}
	prefix, ok := ix.dirPath(vol, rec.ParentID, held)
	if !ok {
		return types.OrphanPrefix + `\` + rec.Name
	}
	return prefix + `\` + rec.Name
}

// dirPath resolves a directory id to its full path. held, when non-nil,
// is a shard whose read lock the caller already holds.
func (ix *Index) dirPath(vol uint16, id types.FileID, held *shard) (string, bool) {
	mount := ix.mountOf(vol)
	if id == types.RootDirectoryID {
		return mount, true
	}

	key := pathCacheKey{vol: vol, id: id}
	ix.pathCacheMu.Lock()
	if p, ok := ix.pathCache[key]; ok {
		ix.pathCacheMu.Unlock()
		return p, true
	}
	ix.pathCacheMu.Unlock()

	var chain []types.FileID
	var names []string
	seen := make(map[types.FileID]bool)
	cur := id
	base := mount

	for {
		if cur == types.RootDirectoryID {
			break
		}
		if seen[cur] || len(chain) >= types.MaxParentDepth {
			return "", false
		}
		seen[cur] = true

		s := ix.shardFor(cur)
		if s != held {
			s.mu.RLock()
		}
		local, ok := s.lookup(vol, cur, 0)
		var name string
		var parent types.FileID
		if ok {
			name = s.name(local)
			parent = s.parents[local]
		}
		if s != held {
			s.mu.RUnlock()
		}
		if !ok {
			return "", false
		}

		chain = append(chain, cur)
		names = append(names, name)
		cur = parent

		ix.pathCacheMu.Lock()
		if p, cached := ix.pathCache[pathCacheKey{vol: vol, id: cur}]; cached {
			ix.pathCacheMu.Unlock()
			base = p
			break
		}
		ix.pathCacheMu.Unlock()
	}

	ix.pathCacheMu.Lock()
	for i := len(chain) - 1; i >= 0; i-- {
		base = base + `\` + names[i]
		if len(ix.pathCache) < ix.pathCacheCap {
			ix.pathCache[pathCacheKey{vol: vol, id: chain[i]}] = base
		}
	}
	ix.pathCacheMu.Unlock()
	return base, true
}

// clearPathCache drops all memoized paths. Directory renames and deletes
// invalidate descendants too, so the whole cache goes.
func (ix *Index) clearPathCache() {
	ix.pathCacheMu.Lock()
	if len(ix.pathCache) > 0 {
		ix.pathCache = make(map[pathCacheKey]string)
	}
	ix.pathCacheMu.Unlock()
}

// mountOf returns the trimmed mount path of a volume ordinal.
func (ix *Index) mountOf(vol uint16) string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if int(vol) < len(ix.volumes) {
		return strings.TrimRight(ix.volumes[vol].Info.Mount, `\`)
	}
	return "?"
}

// Stats summarizes the index.
type Stats struct {
	Records    uint64
	Files      uint64
	Dirs       uint64
	Tombstones uint64
	Volumes    int
	Generation uint64
}

// ComputeStats walks the shards once.
func (ix *Index) ComputeStats() Stats {
	st := Stats{Generation: ix.Generation()}
	for _, s := range ix.shards {
		s.mu.RLock()
		st.Tombstones += s.tombstones.GetCardinality()
		for local := range s.ids {
			if s.tombstones.Contains(uint32(local)) {
				continue
			}
			st.Records++
			if s.flags[local].IsDir() {
				st.Dirs++
			} else {
				st.Files++
			}
		}
		s.mu.RUnlock()
	}
	ix.mu.RLock()
	st.Volumes = len(ix.volumes)
	ix.mu.RUnlock()
	return st
}

// ForEachRecord visits every live record in shard order then local
// order, for persistence and tests. The callback must not mutate the
// index.
func (ix *Index) ForEachRecord(fn func(vol int, rec types.FileRecord)) {
	for _, s := range ix.shards {
		s.mu.RLock()
		for local := range s.ids {
			if s.tombstones.Contains(uint32(local)) {
				continue
			}
			fn(int(s.vols[local]), ix.recordAtLocked(s, uint32(local)))
		}
		s.mu.RUnlock()
	}
}

// sortResults orders results ascending by (volume order, path).
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Volume != results[j].Volume {
			return results[i].Volume < results[j].Volume
		}
		return results[i].Path < results[j].Path
	})
}
