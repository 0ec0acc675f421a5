package traversal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glintsearch/glint/internal/types"
)

func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "old"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.md"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "spec.txt"), []byte("txt"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "old", "draft.txt"), []byte("d"), 0o644))
	return root
}

func scanAll(t *testing.T, b *Backend, vol types.VolumeInfo) map[string]types.RawRecord {
	t.Helper()
	it, err := b.FullScan(context.Background(), vol, nil)
	require.NoError(t, err)
	defer it.Close()

	out := make(map[string]types.RawRecord)
	for {
		rec, err := it.Next()
		require.NoError(t, err)
		if rec == nil {
			return out
		}
		out[rec.Name] = *rec
	}
}

func TestListVolumes(t *testing.T) {
	root := makeTree(t)
	b := NewBackend([]string{root, "/does/not/exist"}, zerolog.Nop())

	vols, err := b.ListVolumes()
	require.NoError(t, err)
	require.Len(t, vols, 1, "unreadable roots are skipped")
	assert.NotZero(t, vols[0].Serial)
	assert.Equal(t, "traversal", b.Name())
}

func TestVolumeSerialStable(t *testing.T) {
	root := makeTree(t)
	b := NewBackend([]string{root}, zerolog.Nop())
	v1, err := b.ListVolumes()
	require.NoError(t, err)
	v2, err := b.ListVolumes()
	require.NoError(t, err)
	assert.Equal(t, v1[0].Serial, v2[0].Serial)
}

func TestFullScanFindsEverything(t *testing.T) {
	root := makeTree(t)
	b := NewBackend([]string{root}, zerolog.Nop())
	vols, err := b.ListVolumes()
	require.NoError(t, err)

	records := scanAll(t, b, vols[0])

	require.Contains(t, records, "readme.md")
	require.Contains(t, records, "docs")
	require.Contains(t, records, "spec.txt")
	require.Contains(t, records, "draft.txt")

	assert.True(t, records["docs"].Flags.IsDir())
	assert.False(t, records["readme.md"].Flags.IsDir())
	assert.Equal(t, uint64(2), records["readme.md"].Size)

	// Parent chain: draft.txt -> old -> docs -> root sentinel.
	assert.Equal(t, records["old"].ID, records["draft.txt"].ParentID)
	assert.Equal(t, records["docs"].ID, records["old"].ParentID)
	assert.Equal(t, types.RootDirectoryID, records["docs"].ParentID)
}

func TestSynthesizedIDsAreStable(t *testing.T) {
	root := makeTree(t)
	b := NewBackend([]string{root}, zerolog.Nop())
	vols, err := b.ListVolumes()
	require.NoError(t, err)

	first := scanAll(t, b, vols[0])
	second := scanAll(t, b, vols[0])
	for name, rec := range first {
		assert.Equal(t, rec.ID, second[name].ID, "id for %s changed between scans", name)
	}
}

func TestResolveParent(t *testing.T) {
	root := makeTree(t)
	b := NewBackend([]string{root}, zerolog.Nop())
	vols, err := b.ListVolumes()
	require.NoError(t, err)

	records := scanAll(t, b, vols[0])
	docs := records["docs"]

	rec, err := b.ResolveParent(vols[0], docs.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "docs", rec.Name)
	assert.True(t, rec.Flags.IsDir())
}

func TestScanCancellation(t *testing.T) {
	root := makeTree(t)
	b := NewBackend([]string{root}, zerolog.Nop())
	vols, err := b.ListVolumes()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	it, err := b.FullScan(ctx, vols[0], nil)
	require.NoError(t, err)
	cancel()
	require.NoError(t, it.Close())
}
