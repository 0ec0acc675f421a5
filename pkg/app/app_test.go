package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glintsearch/glint/internal/backends/mock"
	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/types"
)

func newTestApp(t *testing.T) (*App, *mock.Backend) {
	t.Helper()
	b := mock.New()
	b.AddVolume(
		types.VolumeInfo{Letter: 'C', Mount: `C:\`, Serial: 1, Filesystem: "NTFS"},
		[]types.RawRecord{
			{ID: 20, ParentID: types.RootDirectoryID, Name: "docs", Flags: types.FlagDirectory},
			{ID: 21, ParentID: 20, Name: "guide.pdf", Size: 2048},
			{ID: 22, ParentID: types.RootDirectoryID, Name: "notes.txt", Size: 10},
		})

	a, err := New(Options{
		ConfigPath: filepath.Join(t.TempDir(), "absent.toml"),
		IndexPath:  filepath.Join(t.TempDir(), "glint.idx"),
		Backend:    b,
		Fallback:   b,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return a, b
}

func TestBuildAndQuery(t *testing.T) {
	a, _ := newTestApp(t)
	require.NoError(t, a.BuildIndex(context.Background(), nil))

	rows, err := a.Query(context.Background(), "guide", QueryFilters{}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "guide.pdf", rows[0].Name)
	assert.Equal(t, `C:\docs\guide.pdf`, rows[0].FullPath)
	assert.Equal(t, uint64(2048), rows[0].Size)
	assert.False(t, rows[0].IsDir)
}

func TestQueryFilters(t *testing.T) {
	a, _ := newTestApp(t)
	require.NoError(t, a.BuildIndex(context.Background(), nil))

	rows, err := a.Query(context.Background(), "", QueryFilters{Extensions: []string{"pdf"}}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "guide.pdf", rows[0].Name)

	rows, err = a.Query(context.Background(), "", QueryFilters{DirsOnly: true}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsDir)
}

func TestRepeatedExtensionFlagsUnion(t *testing.T) {
	a, _ := newTestApp(t)
	require.NoError(t, a.BuildIndex(context.Background(), nil))

	rows, err := a.Query(context.Background(), "", QueryFilters{Extensions: []string{"pdf", "txt"}}, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "repeated -e flags select the union of extensions")
}

func TestLoadOrBuildUsesSnapshot(t *testing.T) {
	a, b := newTestApp(t)
	require.NoError(t, a.BuildIndex(context.Background(), nil))
	scans := b.ScanCount()

	require.NoError(t, a.LoadOrBuild(context.Background()))
	assert.Equal(t, scans, b.ScanCount(), "snapshot load must not rescan")
}

func TestClear(t *testing.T) {
	a, _ := newTestApp(t)
	require.NoError(t, a.BuildIndex(context.Background(), nil))
	require.NoError(t, a.Clear())

	rows, err := a.Query(context.Background(), "guide", QueryFilters{}, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	err = a.LoadIndex()
	require.Error(t, err)
}

func TestStats(t *testing.T) {
	a, _ := newTestApp(t)
	require.NoError(t, a.BuildIndex(context.Background(), nil))

	st := a.Stats()
	assert.Equal(t, uint64(3), st.Records)
	assert.Equal(t, uint64(2), st.Files)
	assert.Equal(t, uint64(1), st.Dirs)
	assert.Equal(t, 1, st.Volumes)
}

func TestInvalidQueryError(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := a.Query(context.Background(), "r/[bad/", QueryFilters{}, 0)
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(glerrors.InvalidQuery(0, "bad")))
	assert.Equal(t, 3, ExitCode(glerrors.New(glerrors.KindPermissionDenied, "", "denied")))
	assert.Equal(t, 3, ExitCode(glerrors.New(glerrors.KindUnsupported, "", "nope")))
	assert.Equal(t, 4, ExitCode(glerrors.New(glerrors.KindJournalLost, "", "gap")))
	assert.Equal(t, 5, ExitCode(glerrors.New(glerrors.KindSnapshotIncompatible, "", "crc")))
	assert.Equal(t, 5, ExitCode(glerrors.New(glerrors.KindCorrupt, "", "torn")))
	assert.Equal(t, 1, ExitCode(glerrors.New(glerrors.KindIo, "", "disk")))
}
