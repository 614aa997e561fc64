// Package storage abstracts the artifact and data stores behind one
// backend interface spanning local and remote-style object storage.
// Callers query capability flags instead of branching on error types.
package storage

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Capabilities describes what a backend can do natively. Callers use
// these flags to pick strategies (atomic rename vs copy+delete, metadata
// content identity vs streamed hashing).
type Capabilities struct {
	// AtomicRename is true when Rename moves an object atomically.
	AtomicRename bool
	// ContentIdentity is true when Stat returns a provider-supplied
	// content token (ETag/MD5-style) for objects.
	ContentIdentity bool
	// StreamRead is true when Open can stream object bytes.
	StreamRead bool
}

// FileInfo is the metadata a backend reports for one object.
type FileInfo struct {
	Path string
	Size int64
	// ETag is the provider content token, empty when the backend has no
	// ContentIdentity capability.
	ETag string
}

// Backend is the storage interface shared by every component that touches
// a data root or an artifact root.
type Backend interface {
	Name() string
	Capabilities() Capabilities

	// List enumerates every non-directory path under root, recursively.
	// Listing order is backend-defined; callers must sort.
	List(root string) ([]string, error)
	Stat(path string) (FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	Exists(path string) (bool, error)

	Write(path string, data []byte) error
	Rename(oldPath, newPath string) error
	Copy(srcPath, dstPath string) error
	Delete(path string) error
}

var (
	memMu       sync.Mutex
	memBackends = map[string]*MemBackend{}
)

// RegisterMem mounts an in-memory backend under mem://<name>/. Used by
// tests and local experiments to stand in for a remote object store.
func RegisterMem(name string, b *MemBackend) {
	memMu.Lock()
	defer memMu.Unlock()
	memBackends[name] = b
}

// UnregisterMem removes a mounted in-memory backend.
func UnregisterMem(name string) {
	memMu.Lock()
	defer memMu.Unlock()
	delete(memBackends, name)
}

// Resolve maps a URI to its backend and backend-local path. Supported
// forms: "file:///abs/path", bare absolute or relative paths, and
// "mem://<name>/path" for registered in-memory backends.
func Resolve(uri string) (Backend, string, error) {
	switch {
	case strings.HasPrefix(uri, "file://"):
		return NewLocalBackend(), strings.TrimPrefix(uri, "file://"), nil
	case strings.HasPrefix(uri, "mem://"):
		rest := strings.TrimPrefix(uri, "mem://")
		name, path, _ := strings.Cut(rest, "/")
		memMu.Lock()
		b, ok := memBackends[name]
		memMu.Unlock()
		if !ok {
			return nil, "", fmt.Errorf("no in-memory backend registered for mem://%s", name)
		}
		return b, path, nil
	case strings.Contains(uri, "://"):
		scheme, _, _ := strings.Cut(uri, "://")
		return nil, "", fmt.Errorf("unsupported storage scheme %q in %s", scheme, uri)
	default:
		return NewLocalBackend(), uri, nil
	}
}

// JoinURI appends path segments to a URI, stripping the trailing slash of
// the base first so derived locations are stable regardless of how the
// root was spelled.
func JoinURI(base string, segments ...string) string {
	out := strings.TrimRight(base, "/")
	for _, s := range segments {
		out += "/" + strings.Trim(s, "/")
	}
	return out
}
