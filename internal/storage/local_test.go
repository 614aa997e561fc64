package storage

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackendCapabilities(t *testing.T) {
	caps := NewLocalBackend().Capabilities()
	assert.True(t, caps.AtomicRename)
	assert.True(t, caps.StreamRead)
	assert.False(t, caps.ContentIdentity)
}

func TestLocalBackendRoundTrip(t *testing.T) {
	l := NewLocalBackend()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "object.json")

	require.NoError(t, l.Write(path, []byte(`{"ok":true}`)))

	ok, err := l.Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)

	info, err := l.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size)
	assert.Empty(t, info.ETag)

	r, err := l.Open(path)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, `{"ok":true}`, string(data))
}

func TestLocalBackendListRecursive(t *testing.T) {
	l := NewLocalBackend()
	dir := t.TempDir()
	require.NoError(t, l.Write(filepath.Join(dir, "a.csv"), []byte("a")))
	require.NoError(t, l.Write(filepath.Join(dir, "sub", "b.csv"), []byte("b")))

	files, err := l.List(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Contains(t, files, filepath.Join(dir, "a.csv"))
	assert.Contains(t, files, filepath.Join(dir, "sub", "b.csv"))
}

func TestLocalBackendRenameAndDelete(t *testing.T) {
	l := NewLocalBackend()
	dir := t.TempDir()
	src := filepath.Join(dir, "x.tmp")
	dst := filepath.Join(dir, "x")

	require.NoError(t, l.Write(src, []byte("payload")))
	require.NoError(t, l.Rename(src, dst))

	srcExists, err := l.Exists(src)
	require.NoError(t, err)
	assert.False(t, srcExists)
	dstExists, err := l.Exists(dst)
	require.NoError(t, err)
	assert.True(t, dstExists)

	require.NoError(t, l.Delete(dst))
	gone, err := l.Exists(dst)
	require.NoError(t, err)
	assert.False(t, gone)
}
