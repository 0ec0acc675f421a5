// File: internal/journal/coalescer.go
package journal

import (
	"sort"
	"time"

	"github.com/glintsearch/glint/internal/interfaces"
	"github.com/glintsearch/glint/internal/types"
)

// DefaultWindow is how long an open file's events may keep coalescing
// before the pending mutation is forced out.
const DefaultWindow = 100 * time.Millisecond

// MutationKind is the final effect of a coalesced event run.
type MutationKind uint8

const (
	// MutationCreate adds a record.
	MutationCreate MutationKind = iota

	// MutationRename changes a record's name and possibly parent.
	MutationRename

	// MutationDelete tombstones a record.
	MutationDelete

	// MutationModify updates a record's metadata in place.
	MutationModify
)

func (k MutationKind) String() string {
	switch k {
	case MutationCreate:
		return "create"
	case MutationRename:
		return "rename"
	case MutationDelete:
		return "delete"
	case MutationModify:
		return "modify"
	}
	return "unknown"
}

// Mutation is one index change distilled from a file's journal events.
type Mutation struct {
	Kind     MutationKind
	ID       types.FileID
	ParentID types.FileID

	// Name is the record's (new) name.
	Name string

	// OldName is the previous name for renames, when the journal
	// delivered the RENAME_OLD_NAME half.
	OldName string

	IsDir bool

	// USN is the highest sequence number that contributed.
	USN uint64

	Time types.Filetime
}

// coalescing priority, highest wins.
func (k MutationKind) priority() int {
	switch k {
	case MutationDelete:
		return 3
	case MutationRename:
		return 2
	case MutationCreate:
		return 1
	default:
		return 0
	}
}

// pending accumulates events for one file between open and close.
type pending struct {
	mutation Mutation
	closed   bool
	deadline time.Time
}

// Coalescer folds per-file event runs into single mutations. Events
// between a file's first event and its CLOSE bit merge into one mutation,
// bounded by the window. Priorities: DELETE drops all prior state,
// RENAME_NEW supersedes the name, then CREATE, then DATA_CHANGE. The
// RENAME_OLD/RENAME_NEW pair becomes one atomic rename on CLOSE.
//
// The coalescer is single-consumer state owned by the orchestrator
// thread; it is not safe for concurrent use.
type Coalescer struct {
	window time.Duration
	files  map[types.FileID]*pending

	// now is replaceable for tests.
	now func() time.Time
}

// NewCoalescer creates a coalescer with the given window; zero means
// DefaultWindow.
func NewCoalescer(window time.Duration) *Coalescer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coalescer{
		window: window,
		files:  make(map[types.FileID]*pending),
		now:    time.Now,
	}
}

// Add folds one journal event into the pending state.
func (c *Coalescer) Add(ev interfaces.ChangeEvent) {
	p, ok := c.files[ev.ID]
	if !ok {
		p = &pending{
			mutation: Mutation{Kind: MutationModify, ID: ev.ID},
			deadline: c.now().Add(c.window),
		}
		c.files[ev.ID] = p
	}
	m := &p.mutation

	if ev.USN > m.USN {
		m.USN = ev.USN
	}
	if ev.Time > m.Time {
		m.Time = ev.Time
	}
	m.IsDir = ev.IsDir

	switch {
	case ev.Reason&interfaces.ReasonFileDelete != 0:
		// Delete drops everything that came before it.
		*m = Mutation{
			Kind: MutationDelete, ID: ev.ID, ParentID: ev.ParentID,
			Name: ev.Name, IsDir: ev.IsDir, USN: m.USN, Time: m.Time,
		}

	case ev.Reason&interfaces.ReasonRenameNewName != 0:
		if m.Kind.priority() < MutationRename.priority() {
			m.Kind = MutationRename
		}
		m.Name = ev.Name
		m.ParentID = ev.ParentID

	case ev.Reason&interfaces.ReasonRenameOldName != 0:
		m.OldName = ev.Name
		if m.Name == "" {
			m.Name = ev.Name
		}
		if m.ParentID == 0 {
			m.ParentID = ev.ParentID
		}

	case ev.Reason&interfaces.ReasonFileCreate != 0:
		if m.Kind.priority() < MutationCreate.priority() {
			m.Kind = MutationCreate
		}
		if m.Kind == MutationCreate {
			m.Name = ev.Name
			m.ParentID = ev.ParentID
		}

	default:
		// Data or basic-info change; keep whatever kind we have and fill
		// in the name if this is all we ever learn.
		if m.Name == "" {
			m.Name = ev.Name
			m.ParentID = ev.ParentID
		}
	}

	if ev.Reason&interfaces.ReasonClose != 0 {
		p.closed = true
	}
}

// Collect returns the mutations that are ready: files whose CLOSE bit
// arrived, plus files whose window expired. Output is in ascending USN
// order; a rename pair leaves as one mutation.
func (c *Coalescer) Collect() []Mutation {
	now := c.now()
	var out []Mutation
	for id, p := range c.files {
		if p.closed || !now.Before(p.deadline) {
			out = append(out, p.mutation)
			delete(c.files, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].USN < out[j].USN })
	return out
}

// Drain force-emits everything pending, CLOSE or not, for shutdown and
// rescan boundaries.
func (c *Coalescer) Drain() []Mutation {
	var out []Mutation
	for id, p := range c.files {
		out = append(out, p.mutation)
		delete(c.files, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].USN < out[j].USN })
	return out
}

// PendingCount reports how many files are still accumulating events.
func (c *Coalescer) PendingCount() int { return len(c.files) }
