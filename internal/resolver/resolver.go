// File: internal/resolver/resolver.go
package resolver

import (
	"sort"
	"strings"

	"github.com/glintsearch/glint/internal/types"
)

// LookupFunc fetches a record by id on demand, for forward references the
// stream has not reached yet. It may return (nil, nil) when the record
// does not exist.
type LookupFunc func(id types.FileID) (*types.RawRecord, error)

// Resolved is one record with its reconstructed full path.
type Resolved struct {
	Record types.FileRecord

	// Path is the fully-qualified path, or an "<orphan>"-prefixed
	// synthetic path for records whose parent chain is broken.
	Path string
}

// Resolver reconstructs full paths from a stream of raw records whose
// parent references may point forward or be missing. A record whose chain
// hits an unknown ancestor is parked on a deferred list keyed by that
// ancestor and re-attempted when it arrives. Chains that revisit an id or
// exceed the depth bound are orphaned. For a given input stream the
// output is deterministic.
type Resolver struct {
	mount string

	// name and parent of every directory seen so far, keyed by id.
	dirName   map[types.FileID]string
	dirParent map[types.FileID]types.FileID

	// deferred records keyed by the unknown ancestor id they wait for.
	deferred map[types.FileID][]types.RawRecord

	// prefixCache memoizes directory id -> resolved directory path.
	prefixCache *pathCache

	lookup LookupFunc
}

// New creates a resolver for one volume. mount is the volume mount path
// ("C:\"); the NTFS root directory id is injected with it. lookup may be
// nil when the backend has no random access.
func New(mount string, lookup LookupFunc) *Resolver {
	r := &Resolver{
		mount:       strings.TrimRight(mount, `\`),
		dirName:     make(map[types.FileID]string),
		dirParent:   make(map[types.FileID]types.FileID),
		deferred:    make(map[types.FileID][]types.RawRecord),
		prefixCache: newPathCache(65536),
		lookup:      lookup,
	}
	// The root is its own parent; its path is the mount itself.
	r.dirName[types.RootDirectoryID] = ""
	r.dirParent[types.RootDirectoryID] = types.RootDirectoryID
	return r
}

// Add feeds one record into the resolver. It returns the records that
// became resolvable: the given one if its chain is complete, plus any
// previously deferred records released by it, in arrival order.
func (r *Resolver) Add(raw types.RawRecord) []Resolved {
	var out []Resolved

	newDir := false
	if raw.Flags.IsDir() {
		if _, seen := r.dirName[raw.ID]; !seen {
			r.dirName[raw.ID] = raw.Name
			r.dirParent[raw.ID] = raw.ParentID
			newDir = true
		}
	}

	r.attempt(raw, &out)
	if newDir {
		r.release(raw.ID, &out)
	}
	return out
}

// attempt tries to produce the record's path, deferring on the first
// unknown ancestor and orphaning on cycles.
func (r *Resolver) attempt(raw types.RawRecord, out *[]Resolved) {
	for hop := 0; ; hop++ {
		path, missing, ok := r.tryPath(raw.ParentID)
		switch {
		case ok:
			*out = append(*out, Resolved{Record: raw.Record(), Path: path + `\` + raw.Name})
			return
		case missing != 0:
			// Forward reference: ask the backend once per missing link.
			if r.lookup != nil && hop < types.MaxParentDepth {
				if parent, err := r.lookup(missing); err == nil && parent != nil && parent.Flags.IsDir() {
					r.dirName[parent.ID] = parent.Name
					r.dirParent[parent.ID] = parent.ParentID
					continue
				}
			}
			r.deferred[missing] = append(r.deferred[missing], raw)
			return
		default:
			*out = append(*out, r.orphan(raw))
			return
		}
	}
}

// release re-attempts records that were waiting for the given id.
func (r *Resolver) release(id types.FileID, out *[]Resolved) {
	waiting, ok := r.deferred[id]
	if !ok {
		return
	}
	delete(r.deferred, id)
	for _, raw := range waiting {
		before := len(*out)
		r.attempt(raw, out)
		// A released directory may in turn unblock its own waiters.
		if raw.Flags.IsDir() && len(*out) > before {
			r.release(raw.ID, out)
		}
	}
}

func (r *Resolver) orphan(raw types.RawRecord) Resolved {
	rec := raw.Record()
	rec.Flags |= types.FlagOrphan
	return Resolved{Record: rec, Path: types.OrphanPrefix + `\` + raw.Name}
}

// tryPath resolves the full path of directory id. On success ok is true.
// When the chain reaches an id the resolver has not seen, missing carries
// it. When the chain revisits an id or exceeds the depth bound, both ok
// and missing are zero.
func (r *Resolver) tryPath(id types.FileID) (path string, missing types.FileID, ok bool) {
	if id == types.RootDirectoryID {
		return r.mount, 0, true
	}
	if p, cached := r.prefixCache.get(id); cached {
		return p, 0, true
	}

	var chain []types.FileID
	seen := make(map[types.FileID]bool)
	cur := id
	var base string
	for {
		if cur == types.RootDirectoryID {
			base = r.mount
			break
		}
		if p, cached := r.prefixCache.get(cur); cached {
			base = p
			break
		}
		if seen[cur] || len(chain) >= types.MaxParentDepth {
			return "", 0, false
		}
		if _, known := r.dirName[cur]; !known {
			return "", cur, false
		}
		seen[cur] = true
		chain = append(chain, cur)
		cur = r.dirParent[cur]
	}

	for i := len(chain) - 1; i >= 0; i-- {
		base = base + `\` + r.dirName[chain[i]]
		r.prefixCache.put(chain[i], base)
	}
	return base, 0, true
}

// Flush drains the deferred list at end of stream. Everything still
// deferred waits on an ancestor that never arrived and is emitted as an
// orphan, in ascending ancestor-id order then arrival order.
func (r *Resolver) Flush() []Resolved {
	var parents []types.FileID
	for id := range r.deferred {
		parents = append(parents, id)
	}
	sort.Slice(parents, func(i, j int) bool { return parents[i] < parents[j] })

	var out []Resolved
	for _, pid := range parents {
		for _, raw := range r.deferred[pid] {
			out = append(out, r.orphan(raw))
		}
		delete(r.deferred, pid)
	}
	return out
}

// PendingCount reports how many records are parked on the deferred list.
func (r *Resolver) PendingCount() int {
	n := 0
	for _, v := range r.deferred {
		n += len(v)
	}
	return n
}
