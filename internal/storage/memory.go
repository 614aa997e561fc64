package storage

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemBackend is an in-memory Backend used by tests and local experiments
// to stand in for a remote object store. It can serve ETags, return
// listings in arbitrary order, refuse rename, and inject transient
// failures to exercise retry paths.
type MemBackend struct {
	mu      sync.Mutex
	objects map[string][]byte

	// WithETags makes Stat report an MD5 content token, optionally
	// base64-encoded the way some providers deliver it.
	WithETags    bool
	Base64ETags  bool
	// NoRename strips the AtomicRename capability; Rename then fails.
	NoRename bool
	// NoStream strips the StreamRead capability; Open then fails.
	NoStream bool
	// ListOrder, when set, overrides listing order for determinism tests.
	ListOrder []string

	// FailLists, FailStats and FailOpens make the next n calls of the
	// corresponding operation return a transient error.
	FailLists int
	FailStats int
	FailOpens int
}

// NewMemBackend returns an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{objects: map[string][]byte{}}
}

// Put seeds an object directly, bypassing failure injection.
func (m *MemBackend) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = append([]byte(nil), data...)
}

// Name identifies the backend in logs and errors.
func (m *MemBackend) Name() string { return "mem" }

// Capabilities reflects the configured simulation knobs.
func (m *MemBackend) Capabilities() Capabilities {
	return Capabilities{
		AtomicRename:    !m.NoRename,
		ContentIdentity: m.WithETags,
		StreamRead:      !m.NoStream,
	}
}

// List returns every object path under root. Order follows ListOrder when
// set, map iteration order otherwise.
func (m *MemBackend) List(root string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLists > 0 {
		m.FailLists--
		return nil, fmt.Errorf("transient list failure for %s", root)
	}
	prefix := strings.TrimRight(root, "/")
	var out []string
	if len(m.ListOrder) > 0 {
		for _, p := range m.ListOrder {
			if _, ok := m.objects[p]; ok && underRoot(p, prefix) {
				out = append(out, p)
			}
		}
		return out, nil
	}
	for p := range m.objects {
		if underRoot(p, prefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

func underRoot(path, root string) bool {
	if root == "" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+"/")
}

// Stat reports size and, when enabled, an MD5 content token.
func (m *MemBackend) Stat(path string) (FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailStats > 0 {
		m.FailStats--
		return FileInfo{}, fmt.Errorf("transient stat failure for %s", path)
	}
	data, ok := m.objects[path]
	if !ok {
		return FileInfo{}, fmt.Errorf("object not found: %s", path)
	}
	info := FileInfo{Path: path, Size: int64(len(data))}
	if m.WithETags {
		sum := md5.Sum(data)
		if m.Base64ETags {
			info.ETag = base64.StdEncoding.EncodeToString(sum[:])
		} else {
			info.ETag = hex.EncodeToString(sum[:])
		}
	}
	return info, nil
}

// Open streams object bytes, unless NoStream is set.
func (m *MemBackend) Open(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NoStream {
		return nil, fmt.Errorf("backend does not support streaming reads: %s", path)
	}
	if m.FailOpens > 0 {
		m.FailOpens--
		return nil, fmt.Errorf("transient open failure for %s", path)
	}
	data, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", path)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// Exists reports whether an object is present.
func (m *MemBackend) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

// Write stores an object.
func (m *MemBackend) Write(path string, data []byte) error {
	m.Put(path, data)
	return nil
}

// Rename moves an object, failing when NoRename simulates a rename-less
// object store.
func (m *MemBackend) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NoRename {
		return fmt.Errorf("backend does not support rename: %s", oldPath)
	}
	data, ok := m.objects[oldPath]
	if !ok {
		return fmt.Errorf("object not found: %s", oldPath)
	}
	m.objects[newPath] = data
	delete(m.objects, oldPath)
	return nil
}

// Copy duplicates an object.
func (m *MemBackend) Copy(srcPath, dstPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[srcPath]
	if !ok {
		return fmt.Errorf("object not found: %s", srcPath)
	}
	m.objects[dstPath] = append([]byte(nil), data...)
	return nil
}

// Delete removes an object.
func (m *MemBackend) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; !ok {
		return fmt.Errorf("object not found: %s", path)
	}
	delete(m.objects, path)
	return nil
}
