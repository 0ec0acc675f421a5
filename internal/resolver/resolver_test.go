package resolver

import (
	"testing"

	"github.com/glintsearch/glint/internal/types"
)

func dir(id, parent types.FileID, name string) types.RawRecord {
	return types.RawRecord{ID: id, ParentID: parent, Name: name, Flags: types.FlagDirectory}
}

func file(id, parent types.FileID, name string) types.RawRecord {
	return types.RawRecord{ID: id, ParentID: parent, Name: name}
}

func TestResolveInOrder(t *testing.T) {
	r := New(`C:\`, nil)

	out := r.Add(dir(100, types.RootDirectoryID, "Users"))
	if len(out) != 1 || out[0].Path != `C:\Users` {
		t.Fatalf("out = %+v", out)
	}

	out = r.Add(file(200, 100, "notes.txt"))
	if len(out) != 1 || out[0].Path != `C:\Users\notes.txt` {
		t.Fatalf("out = %+v", out)
	}
}

func TestForwardReferenceDeferred(t *testing.T) {
	r := New(`C:\`, nil)

	// The file arrives before its directory.
	out := r.Add(file(200, 100, "notes.txt"))
	if len(out) != 0 {
		t.Fatalf("premature resolution: %+v", out)
	}
	if r.PendingCount() != 1 {
		t.Errorf("pending = %d", r.PendingCount())
	}

	out = r.Add(dir(100, types.RootDirectoryID, "Users"))
	if len(out) != 2 {
		t.Fatalf("expected dir + released file, got %+v", out)
	}
	if out[0].Path != `C:\Users` || out[1].Path != `C:\Users\notes.txt` {
		t.Errorf("paths = %q, %q", out[0].Path, out[1].Path)
	}
	if r.PendingCount() != 0 {
		t.Errorf("pending = %d after release", r.PendingCount())
	}
}

func TestDeepForwardChainReleases(t *testing.T) {
	r := New(`C:\`, nil)

	// Leaf first, then its ancestors bottom-up.
	if out := r.Add(file(300, 200, "deep.txt")); len(out) != 0 {
		t.Fatalf("out = %+v", out)
	}
	if out := r.Add(dir(200, 100, "b")); len(out) != 0 {
		t.Fatalf("out = %+v", out)
	}
	out := r.Add(dir(100, types.RootDirectoryID, "a"))
	if len(out) != 3 {
		t.Fatalf("expected full chain release, got %+v", out)
	}
	want := []string{`C:\a`, `C:\a\b`, `C:\a\b\deep.txt`}
	for i, w := range want {
		if out[i].Path != w {
			t.Errorf("out[%d].Path = %q, want %q", i, out[i].Path, w)
		}
	}
}

func TestCycleOrphans(t *testing.T) {
	r := New(`C:\`, nil)

	if out := r.Add(dir(100, 200, "a")); len(out) != 0 {
		t.Fatalf("out = %+v", out)
	}
	out := r.Add(dir(200, 100, "b"))
	if len(out) != 2 {
		t.Fatalf("expected both cycle members, got %+v", out)
	}
	for _, res := range out {
		if !res.Record.Flags.IsOrphan() {
			t.Errorf("cycle member not orphaned: %+v", res)
		}
		if res.Path[:len(types.OrphanPrefix)] != types.OrphanPrefix {
			t.Errorf("orphan path = %q", res.Path)
		}
	}
}

func TestFlushOrphansUnresolved(t *testing.T) {
	r := New(`C:\`, nil)

	r.Add(file(300, 999, "lost.txt"))
	out := r.Flush()
	if len(out) != 1 {
		t.Fatalf("out = %+v", out)
	}
	if !out[0].Record.Flags.IsOrphan() || out[0].Path != types.OrphanPrefix+`\lost.txt` {
		t.Errorf("flushed = %+v", out[0])
	}
	if r.PendingCount() != 0 {
		t.Error("deferred list not drained")
	}
}

func TestBackendLookupResolvesForwardReference(t *testing.T) {
	parents := map[types.FileID]types.RawRecord{
		100: dir(100, types.RootDirectoryID, "Users"),
	}
	lookup := func(id types.FileID) (*types.RawRecord, error) {
		if p, ok := parents[id]; ok {
			return &p, nil
		}
		return nil, nil
	}

	r := New(`C:\`, lookup)
	out := r.Add(file(200, 100, "notes.txt"))
	if len(out) != 1 || out[0].Path != `C:\Users\notes.txt` {
		t.Fatalf("lookup not consulted: %+v", out)
	}
}

func TestRootSelfReference(t *testing.T) {
	r := New(`C:\`, nil)
	out := r.Add(types.RawRecord{
		ID: types.RootDirectoryID, ParentID: types.RootDirectoryID,
		Name: ".", Flags: types.FlagDirectory,
	})
	// The root record resolves against itself without recursion.
	if len(out) != 1 {
		t.Fatalf("out = %+v", out)
	}
}

func TestDeterminism(t *testing.T) {
	feed := func() []string {
		r := New(`C:\`, nil)
		var paths []string
		records := []types.RawRecord{
			file(301, 200, "z.txt"),
			file(302, 200, "a.txt"),
			dir(200, 100, "sub"),
			dir(100, types.RootDirectoryID, "top"),
			file(303, 999, "lost.txt"),
		}
		for _, rec := range records {
			for _, res := range r.Add(rec) {
				paths = append(paths, res.Path)
			}
		}
		for _, res := range r.Flush() {
			paths = append(paths, res.Path)
		}
		return paths
	}

	first := feed()
	for i := 0; i < 5; i++ {
		next := feed()
		if len(next) != len(first) {
			t.Fatalf("length varies: %d vs %d", len(next), len(first))
		}
		for j := range next {
			if next[j] != first[j] {
				t.Fatalf("order varies at %d: %q vs %q", j, next[j], first[j])
			}
		}
	}
}

func TestPathCacheEviction(t *testing.T) {
	c := newPathCache(2)
	c.put(1, "a")
	c.put(2, "b")
	c.put(3, "c")
	if _, ok := c.get(1); ok {
		t.Error("oldest entry should have been evicted")
	}
	if p, ok := c.get(3); !ok || p != "c" {
		t.Error("newest entry missing")
	}
	if c.len() != 2 {
		t.Errorf("len = %d", c.len())
	}
}

func TestPathCacheInvalidate(t *testing.T) {
	c := newPathCache(4)
	c.put(1, "a")
	c.invalidate(1)
	if _, ok := c.get(1); ok {
		t.Error("invalidated entry still present")
	}
}
