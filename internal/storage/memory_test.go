package storage

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemBackendCapabilitiesFollowKnobs(t *testing.T) {
	m := NewMemBackend()
	caps := m.Capabilities()
	assert.True(t, caps.AtomicRename)
	assert.True(t, caps.StreamRead)
	assert.False(t, caps.ContentIdentity)

	m.WithETags = true
	m.NoRename = true
	m.NoStream = true
	caps = m.Capabilities()
	assert.False(t, caps.AtomicRename)
	assert.False(t, caps.StreamRead)
	assert.True(t, caps.ContentIdentity)
}

func TestMemBackendETags(t *testing.T) {
	payload := []byte("column,value\n1,2\n")
	sum := md5.Sum(payload)

	m := NewMemBackend()
	m.WithETags = true
	m.Put("data/file.csv", payload)

	info, err := m.Stat("data/file.csv")
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), info.ETag)
	assert.Equal(t, int64(len(payload)), info.Size)

	m.Base64ETags = true
	info, err = m.Stat("data/file.csv")
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), info.ETag)
}

func TestMemBackendListUnderRoot(t *testing.T) {
	m := NewMemBackend()
	m.Put("data/a.csv", []byte("a"))
	m.Put("data/sub/b.csv", []byte("b"))
	m.Put("datadir/outside.csv", []byte("c"))

	files, err := m.List("data")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"data/a.csv", "data/sub/b.csv"}, files)
}

func TestMemBackendListOrderOverride(t *testing.T) {
	m := NewMemBackend()
	m.Put("data/a", []byte("1"))
	m.Put("data/b", []byte("2"))
	m.ListOrder = []string{"data/b", "data/a"}

	files, err := m.List("data")
	require.NoError(t, err)
	assert.Equal(t, []string{"data/b", "data/a"}, files)
}

func TestMemBackendNoRename(t *testing.T) {
	m := NewMemBackend()
	m.NoRename = true
	m.Put("x.tmp", []byte("v"))

	require.Error(t, m.Rename("x.tmp", "x"))
	require.NoError(t, m.Copy("x.tmp", "x"))
	require.NoError(t, m.Delete("x.tmp"))

	r, err := m.Open("x")
	require.NoError(t, err)
	data, _ := io.ReadAll(r)
	assert.Equal(t, "v", string(data))
}

func TestMemBackendTransientFailures(t *testing.T) {
	m := NewMemBackend()
	m.Put("data/a", []byte("1"))
	m.FailLists = 1

	_, err := m.List("data")
	require.Error(t, err)
	files, err := m.List("data")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
