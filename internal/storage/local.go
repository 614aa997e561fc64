package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalBackend implements Backend on the local filesystem. Rename is
// atomic; there is no provider content token, so fingerprinting falls
// through to streamed hashing.
type LocalBackend struct{}

// NewLocalBackend returns the local filesystem backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

// Name identifies the backend in logs and errors.
func (l *LocalBackend) Name() string { return "local" }

// Capabilities reports local filesystem semantics.
func (l *LocalBackend) Capabilities() Capabilities {
	return Capabilities{
		AtomicRename:    true,
		ContentIdentity: false,
		StreamRead:      true,
	}
}

// List walks root recursively and returns every regular file path.
func (l *LocalBackend) List(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	return files, nil
}

// Stat returns size metadata for path.
func (l *LocalBackend) Stat(path string) (FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return FileInfo{Path: path, Size: fi.Size()}, nil
}

// Open opens path for streaming reads.
func (l *LocalBackend) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// Exists reports whether path exists.
func (l *LocalBackend) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return true, nil
}

// Write creates parent directories and writes data to path.
func (l *LocalBackend) Write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Rename moves oldPath to newPath atomically.
func (l *LocalBackend) Rename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", oldPath, newPath, err)
	}
	return nil
}

// Copy duplicates srcPath to dstPath.
func (l *LocalBackend) Copy(srcPath, dstPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", srcPath, err)
	}
	return l.Write(dstPath, data)
}

// Delete removes path.
func (l *LocalBackend) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}
