package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "glint.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.True(t, cfg.General.AutoStartUsn)
	assert.Equal(t, 10000, cfg.General.MaxResults)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.True(t, cfg.Performance.CompressIndex)
	assert.True(t, cfg.Performance.ParallelSearch)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[general]
auto_start_usn = false
max_results = 500
log_level = "debug"

[exclude]
paths = ["C:\\Windows\\Temp"]
patterns = ["*.tmp"]

[volumes]
include = ["C:"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.General.AutoStartUsn)
	assert.Equal(t, 500, cfg.General.MaxResults)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, []string{`C:\Windows\Temp`}, cfg.Exclude.Paths)
	assert.Equal(t, []string{"*.tmp"}, cfg.Exclude.Patterns)
}

func TestUnknownKeysIgnored(t *testing.T) {
	path := writeConfig(t, `
[general]
max_results = 42
frobnicate = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.General.MaxResults)
}

func TestBadLogLevelFallsBack(t *testing.T) {
	path := writeConfig(t, `
[general]
log_level = "loud"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.General.LogLevel)
}

func TestShouldIndexVolume(t *testing.T) {
	cfg := &Config{}
	cfg.Volumes.Include = []string{"C:"}
	cfg.Volumes.Exclude = []string{"D:"}

	assert.True(t, cfg.ShouldIndexVolume(`C:\`))
	assert.False(t, cfg.ShouldIndexVolume(`D:\`))
	assert.False(t, cfg.ShouldIndexVolume(`E:\`))

	cfg.Volumes.Include = nil
	assert.True(t, cfg.ShouldIndexVolume(`E:\`))
	assert.False(t, cfg.ShouldIndexVolume(`D:\`))
}

func TestExcluderPrefixes(t *testing.T) {
	e := NewExcluder(ExcludeConfig{Paths: []string{`C:\Windows\Temp`}})

	assert.True(t, e.Excluded(`C:\Windows\Temp\foo.txt`, "foo.txt"))
	assert.True(t, e.Excluded(`c:\windows\temp`, "temp"))
	assert.False(t, e.Excluded(`C:\Windows\Temporary`, "Temporary"))
	assert.False(t, e.Excluded(`C:\Users\readme.md`, "readme.md"))
}

func TestExcluderPatterns(t *testing.T) {
	e := NewExcluder(ExcludeConfig{Patterns: []string{"*.tmp", "~$*"}})

	assert.True(t, e.Excluded(`C:\work\a.TMP`, "a.TMP"))
	assert.True(t, e.Excluded(`C:\docs\~$draft.docx`, "~$draft.docx"))
	assert.False(t, e.Excluded(`C:\docs\draft.docx`, "draft.docx"))
}

func TestExcluderEmpty(t *testing.T) {
	e := NewExcluder(ExcludeConfig{})
	assert.True(t, e.Empty())
	assert.False(t, e.Excluded(`C:\anything`, "anything"))
}

func TestIndexPathEnvOverride(t *testing.T) {
	t.Setenv("GLINT_INDEX_PATH", `X:\custom\glint.idx`)
	cfg := &Config{}
	assert.Equal(t, `X:\custom\glint.idx`, cfg.IndexPath())
}
