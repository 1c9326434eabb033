package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicReplacesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestAppendFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.md")
	require.NoError(t, AppendFileAtomic(path, "a\n"))
	require.NoError(t, AppendFileAtomic(path, "b\n"))

	got, err := ReadFileOrEmpty(path)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", got)
}

func TestReadFileOrEmptyMissing(t *testing.T) {
	got, err := ReadFileOrEmpty(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGlobSorted(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"2026-01-03.md", "2026-01-01.md", "notes.txt", "2026-01-02.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), nil, 0o644))
	}

	got, err := Glob(root, "????-??-??.md")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, filepath.Join(root, "2026-01-01.md"), got[0])
	assert.Equal(t, filepath.Join(root, "2026-01-03.md"), got[2])

	none, err := Glob(filepath.Join(root, "missing"), "*.md")
	require.NoError(t, err)
	assert.Empty(t, none)
}
