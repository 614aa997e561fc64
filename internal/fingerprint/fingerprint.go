// Package fingerprint reduces the content identity of every file under a
// data root to a single 256-bit hex digest.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ml8s/training-harness/internal/observability"
	"github.com/ml8s/training-harness/internal/storage"
)

// RootUnreachableError means the data root could not be listed even after
// retries.
type RootUnreachableError struct {
	Root string
	Err  error
}

func (e *RootUnreachableError) Error() string {
	return fmt.Sprintf("data root unreachable: %s: %v", e.Root, e.Err)
}

func (e *RootUnreachableError) Unwrap() error { return e.Err }

// EmptyRootError means the data root listed successfully but contained no
// files; an identity over nothing is meaningless.
type EmptyRootError struct {
	Root string
}

func (e *EmptyRootError) Error() string {
	return fmt.Sprintf("no files discovered under data root %s", e.Root)
}

// ComputationError means a file token could not be resolved after
// exhausting retries.
type ComputationError struct {
	Path string
	Err  error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("failed to fingerprint %s: %v", e.Path, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// FileToken records the content token resolved for one file and which
// strategy produced it, for auditability.
type FileToken struct {
	Path     string
	Token    string
	Strategy string
	Size     int64
}

// Fingerprinter walks a data root and folds per-file content tokens into
// one digest. The result is invariant to the backend's listing order and
// sensitive to any content or path change.
type Fingerprinter struct {
	Retry     storage.RetryPolicy
	ChunkSize int
	Logger    zerolog.Logger
}

// New returns a Fingerprinter with the given retry policy and streaming
// chunk size. chunkSize only affects memory usage, never the digest.
func New(retry storage.RetryPolicy, chunkSize int, logger zerolog.Logger) *Fingerprinter {
	if chunkSize <= 0 {
		chunkSize = 8 * 1024 * 1024
	}
	return &Fingerprinter{Retry: retry, ChunkSize: chunkSize, Logger: logger}
}

const tokenSeparator = "|"

// Fingerprint computes the data fingerprint for rootURI. It returns the
// hex digest and the per-file token audit trail.
func (f *Fingerprinter) Fingerprint(rootURI string) (string, []FileToken, error) {
	backend, root, err := storage.Resolve(rootURI)
	if err != nil {
		return "", nil, &RootUnreachableError{Root: rootURI, Err: err}
	}

	var paths []string
	err = f.Retry.Do("list "+rootURI, func() error {
		var listErr error
		paths, listErr = backend.List(root)
		return listErr
	})
	if err != nil {
		return "", nil, &RootUnreachableError{Root: rootURI, Err: err}
	}
	if len(paths) == 0 {
		return "", nil, &EmptyRootError{Root: rootURI}
	}

	// Sorting by path, not discovery order, keeps the digest independent
	// of how the backend happens to enumerate.
	sort.Strings(paths)

	tokens := make([]FileToken, 0, len(paths))
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		tok, err := f.tokenForFile(backend, p)
		if err != nil {
			return "", nil, err
		}
		observability.FingerprintStrategyTotal.WithLabelValues(tok.Strategy).Inc()
		tokens = append(tokens, tok)
		parts = append(parts, tok.Token)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, tokenSeparator)))
	digest := hex.EncodeToString(sum[:])
	f.Logger.Debug().
		Str("root", rootURI).
		Int("files", len(paths)).
		Str("fingerprint", digest).
		Msg("computed data fingerprint")
	return digest, tokens, nil
}

func (f *Fingerprinter) tokenForFile(backend storage.Backend, path string) (FileToken, error) {
	var tok FileToken
	err := f.Retry.Do("fingerprint "+path, func() error {
		t, err := resolveToken(backend, path, f.ChunkSize)
		if err != nil {
			return err
		}
		tok = t
		return nil
	})
	if err != nil {
		return FileToken{}, &ComputationError{Path: path, Err: err}
	}
	return tok, nil
}
