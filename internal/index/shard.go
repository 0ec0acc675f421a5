// File: internal/index/shard.go
package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/glintsearch/glint/internal/types"
)

// compactionThreshold: a shard compacts when more than this fraction of
// its records are tombstones.
const compactionThreshold = 0.20

// recordKey identifies one indexed name: hardlinks share an id but carry
// distinct name indices.
type recordKey struct {
	vol       uint16
	id        types.FileID
	nameIndex uint16
}

// shard is one horizontal partition of the index. Records live in packed
// parallel columns with names in a byte arena, so a scan walks flat
// memory. A shard owns its records exclusively; all access goes through
// its lock.
type shard struct {
	mu sync.RWMutex

	vols      []uint16
	ids       []types.FileID
	parents   []types.FileID
	flags     []types.RecordFlags
	sizes     []uint64
	mtimes    []types.Filetime
	extHashes []uint64
	nameOffs  []uint32
	nameLens  []uint16
	nameIdxs  []uint16
	nameArena []byte

	// tombstones marks dead locals awaiting compaction.
	tombstones *roaring.Bitmap

	// byKey maps each live or tombstoned record to its local index.
	byKey map[recordKey]uint32

	// children maps (vol, parent id) to child locals, for path repair
	// and subtree checks.
	children map[parentKey][]uint32
}

type parentKey struct {
	vol uint16
	id  types.FileID
}

func newShard() *shard {
	return &shard{
		tombstones: roaring.New(),
		byKey:      make(map[recordKey]uint32),
		children:   make(map[parentKey][]uint32),
	}
}

// lenLocked returns the column length including tombstones.
func (s *shard) lenLocked() int { return len(s.ids) }

// liveLocked returns the number of non-tombstoned records.
func (s *shard) liveLocked() int {
	return len(s.ids) - int(s.tombstones.GetCardinality())
}

// name returns the record name at a local index. Caller holds the lock.
func (s *shard) name(local uint32) string {
	off := s.nameOffs[local]
	return string(s.nameArena[off : off+uint32(s.nameLens[local])])
}

// append adds one record. Caller holds the write lock. If the same
// (vol, id, name index) already exists it is updated in place instead,
// keeping the key map a bijection over live records.
func (s *shard) append(vol uint16, rec types.FileRecord) {
	key := recordKey{vol: vol, id: rec.ID, nameIndex: rec.NameIndex}
	if local, ok := s.byKey[key]; ok {
		s.updateAt(local, rec)
		return
	}

	local := uint32(len(s.ids))
	s.vols = append(s.vols, vol)
	s.ids = append(s.ids, rec.ID)
	s.parents = append(s.parents, rec.ParentID)
	s.flags = append(s.flags, rec.Flags)
	s.sizes = append(s.sizes, rec.Size)
	s.mtimes = append(s.mtimes, rec.MTime)
	s.extHashes = append(s.extHashes, rec.ExtHash)
	s.nameOffs = append(s.nameOffs, uint32(len(s.nameArena)))
	s.nameLens = append(s.nameLens, uint16(len(rec.Name)))
	s.nameIdxs = append(s.nameIdxs, rec.NameIndex)
	s.nameArena = append(s.nameArena, rec.Name...)

	s.byKey[key] = local
	pk := parentKey{vol: vol, id: rec.ParentID}
	s.children[pk] = append(s.children[pk], local)
}

// updateAt overwrites a record in place. The name goes to the end of the
// arena; the hole is reclaimed at the next compaction. Caller holds the
// write lock.
func (s *shard) updateAt(local uint32, rec types.FileRecord) {
	if old := s.parents[local]; old != rec.ParentID {
		pk := parentKey{vol: s.vols[local], id: old}
		s.children[pk] = removeLocal(s.children[pk], local)
		npk := parentKey{vol: s.vols[local], id: rec.ParentID}
		s.children[npk] = append(s.children[npk], local)
	}

	s.parents[local] = rec.ParentID
	s.flags[local] = rec.Flags
	s.sizes[local] = rec.Size
	s.mtimes[local] = rec.MTime
	s.extHashes[local] = rec.ExtHash

	if s.name(local) != rec.Name {
		s.nameOffs[local] = uint32(len(s.nameArena))
		s.nameLens[local] = uint16(len(rec.Name))
		s.nameArena = append(s.nameArena, rec.Name...)
	}
	s.tombstones.Remove(local)
}

// tombstoneAll marks every name of (vol, id) deleted. Caller holds the
// write lock. Returns how many records were tombstoned.
func (s *shard) tombstoneAll(vol uint16, id types.FileID) int {
	n := 0
	for key, local := range s.byKey {
		if key.vol == vol && key.id == id && !s.tombstones.Contains(local) {
			s.tombstones.Add(local)
			s.flags[local] |= types.FlagTombstone
			n++
		}
	}
	return n
}

// lookup returns the local index for a key if present and live.
func (s *shard) lookup(vol uint16, id types.FileID, nameIndex uint16) (uint32, bool) {
	local, ok := s.byKey[recordKey{vol: vol, id: id, nameIndex: nameIndex}]
	if !ok || s.tombstones.Contains(local) {
		return 0, false
	}
	return local, true
}

// needsCompaction reports whether the tombstone fraction exceeds the
// threshold. Caller holds at least the read lock.
func (s *shard) needsCompaction() bool {
	n := len(s.ids)
	if n == 0 {
		return false
	}
	return float64(s.tombstones.GetCardinality())/float64(n) > compactionThreshold
}

// compact rewrites the shard without tombstones into fresh columns and a
// fresh arena. Caller holds the write lock; the swap is atomic under it.
func (s *shard) compact() {
	n := s.liveLocked()
	fresh := &shard{
		vols:       make([]uint16, 0, n),
		ids:        make([]types.FileID, 0, n),
		parents:    make([]types.FileID, 0, n),
		flags:      make([]types.RecordFlags, 0, n),
		sizes:      make([]uint64, 0, n),
		mtimes:     make([]types.Filetime, 0, n),
		extHashes:  make([]uint64, 0, n),
		nameOffs:   make([]uint32, 0, n),
		nameLens:   make([]uint16, 0, n),
		nameIdxs:   make([]uint16, 0, n),
		tombstones: roaring.New(),
		byKey:      make(map[recordKey]uint32, n),
		children:   make(map[parentKey][]uint32),
	}

	for local := 0; local < len(s.ids); local++ {
		if s.tombstones.Contains(uint32(local)) {
			continue
		}
		nl := uint32(len(fresh.ids))
		fresh.vols = append(fresh.vols, s.vols[local])
		fresh.ids = append(fresh.ids, s.ids[local])
		fresh.parents = append(fresh.parents, s.parents[local])
		fresh.flags = append(fresh.flags, s.flags[local])
		fresh.sizes = append(fresh.sizes, s.sizes[local])
		fresh.mtimes = append(fresh.mtimes, s.mtimes[local])
		fresh.extHashes = append(fresh.extHashes, s.extHashes[local])
		fresh.nameOffs = append(fresh.nameOffs, uint32(len(fresh.nameArena)))
		fresh.nameLens = append(fresh.nameLens, s.nameLens[local])
		fresh.nameIdxs = append(fresh.nameIdxs, s.nameIdxs[local])
		fresh.nameArena = append(fresh.nameArena, s.name(uint32(local))...)

		key := recordKey{vol: s.vols[local], id: s.ids[local], nameIndex: s.nameIdxs[local]}
		fresh.byKey[key] = nl
		pk := parentKey{vol: s.vols[local], id: s.parents[local]}
		fresh.children[pk] = append(fresh.children[pk], nl)
	}

	s.vols = fresh.vols
	s.ids = fresh.ids
	s.parents = fresh.parents
	s.flags = fresh.flags
	s.sizes = fresh.sizes
	s.mtimes = fresh.mtimes
	s.extHashes = fresh.extHashes
	s.nameOffs = fresh.nameOffs
	s.nameLens = fresh.nameLens
	s.nameIdxs = fresh.nameIdxs
	s.nameArena = fresh.nameArena
	s.tombstones = fresh.tombstones
	s.byKey = fresh.byKey
	s.children = fresh.children
}

// dropVolume removes every record of a volume by tombstoning it and
// compacting. Caller holds the write lock.
func (s *shard) dropVolume(vol uint16) {
	for key, local := range s.byKey {
		if key.vol == vol {
			s.tombstones.Add(local)
			s.flags[local] |= types.FlagTombstone
		}
	}
	s.compact()
}

// reset empties the shard in place. Caller holds the write lock.
func (s *shard) reset() {
	s.vols = nil
	s.ids = nil
	s.parents = nil
	s.flags = nil
	s.sizes = nil
	s.mtimes = nil
	s.extHashes = nil
	s.nameOffs = nil
	s.nameLens = nil
	s.nameIdxs = nil
	s.nameArena = nil
	s.tombstones = roaring.New()
	s.byKey = make(map[recordKey]uint32)
	s.children = make(map[parentKey][]uint32)
}

func removeLocal(list []uint32, local uint32) []uint32 {
	for i, l := range list {
		if l == local {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
