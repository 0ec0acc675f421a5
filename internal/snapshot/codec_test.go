package snapshot

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/index"
	"github.com/glintsearch/glint/internal/query"
	"github.com/glintsearch/glint/internal/types"
)

func buildIndex(t *testing.T) *index.Index {
	t.Helper()
	ix := index.New(4)
	vol := ix.AddVolume(types.VolumeInfo{
		Letter: 'C', Mount: `C:\`, Label: "System", Serial: 0xDEADBEEF, Filesystem: "NTFS",
	})
	ix.InsertBatch(vol, []types.FileRecord{
		{ID: 8, ParentID: types.RootDirectoryID, Name: "proj", Flags: types.FlagDirectory},
		{ID: 10, ParentID: 8, Name: "README.md", Size: 1024, MTime: 555,
			ExtHash: types.ExtensionHash("README.md")},
		{ID: 11, ParentID: types.RootDirectoryID, Name: "readme.txt", Size: 10,
			ExtHash: types.ExtensionHash("readme.txt")},
	})
	ix.SetLastUSN(vol, 4242)
	return ix
}

func queryAll(t *testing.T, ix *index.Index, input string) []string {
	t.Helper()
	q, err := query.Parse(input)
	require.NoError(t, err)
	results, err := ix.Search(context.Background(), q, index.SearchOptions{Parallel: false})
	require.NoError(t, err)
	var out []string
	for _, r := range results {
		out = append(out, r.Path)
	}
	return out
}

func TestRoundTripUncompressed(t *testing.T) {
	ix := buildIndex(t)
	data, err := Encode(ix, Options{})
	require.NoError(t, err)

	assert.Equal(t, Magic, string(data[0:8]))
	assert.Equal(t, FormatVersion, binary.LittleEndian.Uint32(data[8:12]))

	loaded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, ix.Count(), loaded.Count())
	assert.Equal(t, queryAll(t, ix, "readme"), queryAll(t, loaded, "readme"))

	vols := loaded.Volumes()
	require.Len(t, vols, 1)
	assert.Equal(t, byte('C'), vols[0].Info.Letter)
	assert.Equal(t, "System", vols[0].Info.Label)
	assert.Equal(t, uint64(0xDEADBEEF), vols[0].Info.Serial)
	assert.Equal(t, uint64(4242), vols[0].LastUSN)
}

func TestSaveOfLoadIsByteIdentical(t *testing.T) {
	ix := buildIndex(t)
	first, err := Encode(ix, Options{})
	require.NoError(t, err)

	loaded, err := Decode(first)
	require.NoError(t, err)

	second, err := Encode(loaded, Options{})
	require.NoError(t, err)
	assert.Equal(t, first, second, "save(load(x)) must equal x byte-for-byte")
}

func TestRoundTripLZ4(t *testing.T) {
	ix := buildIndex(t)
	data, err := Encode(ix, Options{Compress: true})
	require.NoError(t, err)

	flags := binary.LittleEndian.Uint32(data[12:16])
	assert.NotZero(t, flags&FlagCompressed)
	assert.Zero(t, flags&FlagZstd)

	loaded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, queryAll(t, ix, "readme"), queryAll(t, loaded, "readme"))
}

func TestRoundTripZstd(t *testing.T) {
	ix := buildIndex(t)
	data, err := Encode(ix, Options{Compress: true, Zstd: true})
	require.NoError(t, err)

	flags := binary.LittleEndian.Uint32(data[12:16])
	assert.NotZero(t, flags&FlagCompressed)
	assert.NotZero(t, flags&FlagZstd)

	loaded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ix.Count(), loaded.Count())
}

func TestLongNonAsciiNameRoundTrip(t *testing.T) {
	name := strings.Repeat("ф", 200) + ".データ"
	ix := index.New(2)
	vol := ix.AddVolume(types.VolumeInfo{Letter: 'D', Mount: `D:\`})
	ix.InsertBatch(vol, []types.FileRecord{{
		ID: 77, ParentID: types.RootDirectoryID, Name: name,
		ExtHash: types.ExtensionHash(name),
	}})

	data, err := Encode(ix, Options{Compress: true, Zstd: true})
	require.NoError(t, err)
	loaded, err := Decode(data)
	require.NoError(t, err)

	got := queryAll(t, loaded, "ффф")
	require.Len(t, got, 1)
	assert.Equal(t, `D:\`+name, got[0])
}

func TestVersionMismatch(t *testing.T) {
	data, err := Encode(buildIndex(t), Options{})
	require.NoError(t, err)
	data[8] = 0xFF
	// Re-seal the checksum so only the version is wrong.
	reseal(data)

	_, err = Decode(data)
	assert.True(t, glerrors.IsKind(err, glerrors.KindSnapshotIncompatible), "got %v", err)
}

func TestChecksumMismatch(t *testing.T) {
	data, err := Encode(buildIndex(t), Options{})
	require.NoError(t, err)
	data[20] ^= 0xFF

	_, err = Decode(data)
	assert.True(t, glerrors.IsKind(err, glerrors.KindSnapshotIncompatible), "got %v", err)
}

func TestBadMagic(t *testing.T) {
	data, err := Encode(buildIndex(t), Options{})
	require.NoError(t, err)
	copy(data[0:8], "NOTANIDX")

	_, err = Decode(data)
	assert.True(t, glerrors.IsKind(err, glerrors.KindSnapshotIncompatible), "got %v", err)
}

func TestTruncatedPayload(t *testing.T) {
	data, err := Encode(buildIndex(t), Options{})
	require.NoError(t, err)
	cut := data[:len(data)-40]
	reseal(cut)

	_, err = Decode(cut)
	assert.True(t, glerrors.IsKind(err, glerrors.KindCorrupt), "got %v", err)
}

func TestStoreSaveLoad(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(filepath.Join(dir, "glint.idx"), Options{Compress: true}, zerolog.Nop())

	ix := buildIndex(t)
	require.NoError(t, st.Save(ix))
	require.True(t, st.Exists())

	loaded, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, ix.Count(), loaded.Count())
}

func TestStoreBackupRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glint.idx")
	st := NewStore(path, Options{}, zerolog.Nop())

	ix := buildIndex(t)
	require.NoError(t, st.Save(ix))
	require.NoError(t, st.Save(ix))
	_, err := os.Stat(path + ".bak")
	assert.NoError(t, err, "second save should rotate a backup")

	// Corrupt the main file; Load falls back to the backup.
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	loaded, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, ix.Count(), loaded.Count())
}

func TestStoreClear(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(filepath.Join(dir, "glint.idx"), Options{}, zerolog.Nop())
	require.NoError(t, st.Save(buildIndex(t)))
	require.NoError(t, st.Clear())
	assert.False(t, st.Exists())
}

func TestStoreLoadMissing(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "none.idx"), Options{}, zerolog.Nop())
	_, err := st.Load()
	assert.True(t, glerrors.IsKind(err, glerrors.KindIo), "got %v", err)
}

// reseal recomputes the trailing CRC32C after test mutations.
func reseal(data []byte) {
	body := data[:len(data)-4]
	binary.LittleEndian.PutUint32(data[len(data)-4:], crc32.Checksum(body, castagnoli))
}
