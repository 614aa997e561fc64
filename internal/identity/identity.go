// Package identity derives the stable run identity for one
// configuration + data pairing.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ml8s/training-harness/internal/storage"
)

// RunNamespace is the fixed segment under the pipeline root where every
// run's artifacts live.
const RunNamespace = "ml8s_training_runs"

// RunIDLength is the truncated hex length of the run id. 48 bits admits a
// birthday-bound collision chance across very many runs; the gate treats
// a snapshot hash mismatch as stale rather than reusing it, so a
// collision costs recomputation, never silent reuse.
const RunIDLength = 12

// Identity is the (full hash, run id, artifact root) triple downstream
// stages consume.
type Identity struct {
	FullHash     string
	RunID        string
	ArtifactRoot string
}

// MissingFingerprintError means strict fingerprint mode was on but no
// data fingerprint was available. An identity without a verified data
// fingerprint cannot be trusted for caching decisions.
type MissingFingerprintError struct{}

func (e *MissingFingerprintError) Error() string {
	return "data fingerprint required in strict mode but not provided"
}

// Derive computes the run identity from canonical config JSON and the
// data fingerprint. The fingerprint participates in the hash only when
// strict mode is on; strict mode without a fingerprint is fatal.
func Derive(canonicalJSON, dataFingerprint string, strict bool, pipelineRoot string) (Identity, error) {
	if pipelineRoot == "" {
		return Identity{}, fmt.Errorf("pipeline root URI is required to derive artifact root")
	}
	combined := canonicalJSON
	if strict {
		if dataFingerprint == "" {
			return Identity{}, &MissingFingerprintError{}
		}
		combined = canonicalJSON + "\n" + dataFingerprint
	}
	sum := sha256.Sum256([]byte(combined))
	full := hex.EncodeToString(sum[:])
	runID := full[:RunIDLength]
	return Identity{
		FullHash:     full,
		RunID:        runID,
		ArtifactRoot: storage.JoinURI(pipelineRoot, RunNamespace, runID),
	}, nil
}
