// Package snapshot persists the per-run config snapshot with an atomic
// write discipline and reads it back defensively.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ml8s/training-harness/internal/observability"
	"github.com/ml8s/training-harness/internal/storage"
)

// FileName is the snapshot object name under the artifact root.
const FileName = "config_snapshot.json"

// Redacted replaces the value of configured environment keys in the
// persisted snapshot.
const Redacted = "<REDACTED>"

// Snapshot is the persisted record of one bootstrap invocation. It is
// written once per invocation, before any downstream work, and
// overwritten on recompute with an identical id.
type Snapshot struct {
	CanonicalConfig map[string]any    `json:"canonical_config"`
	FullConfigHash  string            `json:"full_config_hash"`
	RunID           string            `json:"run_id"`
	DataFingerprint *string           `json:"data_fingerprint"`
	TimestampUTC    string            `json:"timestamp_utc"`
	Env             map[string]string `json:"env"`
}

// New assembles a Snapshot, redacting the configured env keys.
// fingerprint may be empty when strict mode is off.
func New(canonical map[string]any, fullHash, runID, fingerprint string, environ map[string]string, redactKeys []string) *Snapshot {
	redact := make(map[string]struct{}, len(redactKeys))
	for _, k := range redactKeys {
		redact[k] = struct{}{}
	}
	env := make(map[string]string, len(environ))
	for k, v := range environ {
		if _, ok := redact[k]; ok {
			env[k] = Redacted
			continue
		}
		env[k] = v
	}
	var fp *string
	if fingerprint != "" {
		fp = &fingerprint
	}
	return &Snapshot{
		CanonicalConfig: canonical,
		FullConfigHash:  fullHash,
		RunID:           runID,
		DataFingerprint: fp,
		TimestampUTC:    time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Env:             env,
	}
}

// PersistenceError means a snapshot or marker could not be durably
// written. The pipeline must never proceed believing a write succeeded
// when it did not.
type PersistenceError struct {
	URI string
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s) for %s: %v", e.Op, e.URI, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CorruptSnapshotError means a snapshot was present but failed parsing or
// shape validation. The gate downgrades it to a cache miss.
type CorruptSnapshotError struct {
	URI string
	Err error
}

func (e *CorruptSnapshotError) Error() string {
	return fmt.Sprintf("corrupt snapshot at %s: %v", e.URI, e.Err)
}

func (e *CorruptSnapshotError) Unwrap() error { return e.Err }

// Store writes and reads JSON records on a storage backend with the
// atomic temp-then-promote discipline.
type Store struct {
	Logger zerolog.Logger
}

// NewStore returns a snapshot store logging through logger.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{Logger: logger}
}

// Write serializes v as canonical indented JSON and promotes it to uri
// atomically: write "<uri>.tmp", rename into place, or copy-then-delete
// when the backend lacks atomic rename. A partially written object never
// lands at the final uri.
func (s *Store) Write(uri string, v any) error {
	data, err := marshalSortedIndented(v)
	if err != nil {
		return &PersistenceError{URI: uri, Op: "marshal", Err: err}
	}
	return s.WriteBytes(uri, data)
}

// WriteBytes writes raw bytes to uri with the same atomic discipline as
// Write. A zero-length payload is valid; the success marker uses it.
func (s *Store) WriteBytes(uri string, data []byte) error {
	backend, path, err := storage.Resolve(uri)
	if err != nil {
		return &PersistenceError{URI: uri, Op: "resolve", Err: err}
	}
	tmp := path + ".tmp"
	if err := backend.Write(tmp, data); err != nil {
		return &PersistenceError{URI: uri, Op: "write-temp", Err: err}
	}
	if backend.Capabilities().AtomicRename {
		if err := backend.Rename(tmp, path); err == nil {
			return nil
		}
		// fall through to copy+delete before giving up
	}
	if err := backend.Copy(tmp, path); err != nil {
		return &PersistenceError{URI: uri, Op: "promote", Err: err}
	}
	if err := backend.Delete(tmp); err != nil {
		s.Logger.Warn().Str("uri", uri).Err(err).Msg("could not remove temp object after copy")
	}
	return nil
}

// WriteSnapshot persists snap under artifactRoot and returns its uri.
func (s *Store) WriteSnapshot(artifactRoot string, snap *Snapshot) (string, error) {
	uri := storage.JoinURI(artifactRoot, FileName)
	if err := s.Write(uri, snap); err != nil {
		return "", err
	}
	observability.SnapshotWritesTotal.Inc()
	s.Logger.Info().Str("uri", uri).Msg("persisted config snapshot")
	return uri, nil
}

// ReadSnapshot fetches, parses and shape-validates the snapshot under
// artifactRoot. A missing object returns (nil, nil); a present but
// unparsable or malformed object returns a CorruptSnapshotError, which
// callers treat as cache miss, never as fatal.
func (s *Store) ReadSnapshot(artifactRoot string) (*Snapshot, error) {
	uri := storage.JoinURI(artifactRoot, FileName)
	backend, path, err := storage.Resolve(uri)
	if err != nil {
		return nil, &CorruptSnapshotError{URI: uri, Err: err}
	}
	ok, err := backend.Exists(path)
	if err != nil {
		return nil, &CorruptSnapshotError{URI: uri, Err: err}
	}
	if !ok {
		return nil, nil
	}
	r, err := backend.Open(path)
	if err != nil {
		return nil, &CorruptSnapshotError{URI: uri, Err: err}
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &CorruptSnapshotError{URI: uri, Err: err}
	}
	if err := validateShape(data); err != nil {
		return nil, &CorruptSnapshotError{URI: uri, Err: err}
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &CorruptSnapshotError{URI: uri, Err: err}
	}
	return &snap, nil
}

// marshalSortedIndented renders v as indented JSON with sorted keys at
// every level, matching the canonical serialization contract.
func marshalSortedIndented(v any) ([]byte, error) {
	// Round-trip through a generic value so struct field order cannot
	// leak into the output; maps marshal with sorted keys.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
