package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "manifests", "a.yaml")
	b := filepath.Join(dir, "manifests", "b.yaml")

	require.NoError(t, WriteFiles(map[string][]byte{a: []byte("a"), b: []byte("b")}, []string{a, b}))

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))
	got, err = os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))

	info, err := os.Stat(a)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestWriteFiles_AllOrNothing(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not a directory"), 0644))
	bad := filepath.Join(blocker, "bad.yaml")

	err := WriteFiles(map[string][]byte{good: []byte("g"), bad: []byte("b")}, []string{good, bad})
	require.Error(t, err)

	_, statErr := os.Stat(good)
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the blocker remains, staged files are removed")
}

func TestWriteFiles_RollsBackMovedFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.yaml")
	fresh := filepath.Join(dir, "b.yaml")
	blocked := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0600))
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "keep"), 0755))

	err := WriteFiles(map[string][]byte{
		existing: []byte("new a"),
		fresh:    []byte("new b"),
		blocked:  []byte("new c"),
	}, []string{existing, fresh, blocked})
	require.Error(t, err)

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
	info, err := os.Stat(existing)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.NoFileExists(t, fresh)
	assert.DirExists(t, filepath.Join(blocked, "keep"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := []string{}
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.Equal(t, []string{"a.yaml", "c.yaml"}, names, "no staged file is left behind")
}

func TestWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.go")
	require.NoError(t, WriteFile(path, []byte("old")))
	require.NoError(t, WriteFile(path, []byte("new")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}
