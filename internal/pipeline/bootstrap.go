// Package pipeline provides the bootstrap orchestration: derive the run
// identity, persist the snapshot, and consult the idempotence gate.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ml8s/training-harness/internal/envcfg"
	"github.com/ml8s/training-harness/internal/fingerprint"
	"github.com/ml8s/training-harness/internal/gate"
	"github.com/ml8s/training-harness/internal/identity"
	"github.com/ml8s/training-harness/internal/ledger"
	"github.com/ml8s/training-harness/internal/snapshot"
)

// Options wires the bootstrap run. Config and Environ are built once at
// process entry; nothing below this layer reads ambient state.
type Options struct {
	Config  *envcfg.PlatformConfig
	Environ map[string]string
	Logger  zerolog.Logger
	// Ledger is optional; nil disables invocation persistence.
	Ledger *ledger.Ledger
}

// Result is the downstream consumption contract plus the gate outcome.
// Feature engineering and training stages receive only these values and
// never recompute the identity.
type Result struct {
	CanonicalConfig map[string]any `json:"canonical_config"`
	CanonicalJSON   string         `json:"-"`
	DataFingerprint string         `json:"data_fingerprint"`
	FullConfigHash  string         `json:"full_config_hash"`
	RunID           string         `json:"run_id"`
	ArtifactRoot    string         `json:"artifact_root"`
	SnapshotURI     string         `json:"snapshot_uri"`
	Decision        string         `json:"decision"`
	EarlyExit       bool           `json:"early_exit"`
	Reason          string         `json:"reason,omitempty"`

	// FileTokens is the fingerprint audit trail: which strategy resolved
	// each file.
	FileTokens []fingerprint.FileToken `json:"-"`

	invocationID uuid.UUID
}

// Bootstrap computes the run identity for the configured data root,
// persists the config snapshot before any downstream work, and runs the
// idempotence gate. Canonicalization and data fingerprinting run on
// parallel branches; both must succeed.
func Bootstrap(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	log := opts.Logger

	var (
		canonical     map[string]any
		canonicalJSON string
		dataFP        string
		tokens        []fingerprint.FileToken
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		canonical = envcfg.Canonical(cfg)
		js, err := envcfg.CanonicalJSON(canonical)
		if err != nil {
			return err
		}
		canonicalJSON = js
		return nil
	})
	g.Go(func() error {
		fp := fingerprint.New(cfg.RetryPolicy(), int(cfg.FingerprintChunk), log)
		digest, toks, err := fp.Fingerprint(cfg.DataRoot)
		if err != nil {
			return err
		}
		dataFP = digest
		tokens = toks
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	id, err := identity.Derive(canonicalJSON, dataFP, cfg.StrictDataFingerprint, cfg.PipelineRootURI)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("run_id", id.RunID).
		Str("full_hash", id.FullHash).
		Str("artifact_root", id.ArtifactRoot).
		Msg("derived run identity")

	store := snapshot.NewStore(log)
	snap := snapshot.New(canonical, id.FullHash, id.RunID, dataFP, opts.Environ, cfg.RedactedEnvKeys)
	snapURI, err := store.WriteSnapshot(id.ArtifactRoot, snap)
	if err != nil {
		return nil, err
	}

	res := &Result{
		CanonicalConfig: canonical,
		CanonicalJSON:   canonicalJSON,
		DataFingerprint: dataFP,
		FullConfigHash:  id.FullHash,
		RunID:           id.RunID,
		ArtifactRoot:    id.ArtifactRoot,
		SnapshotURI:     snapURI,
		FileTokens:      tokens,
	}

	decision := gate.New(store, log).Check(id.ArtifactRoot, id.FullHash, dataFP, cfg.ForceRerun)
	res.Decision = decision.Decision.String()
	res.EarlyExit = decision.ShortCircuit
	res.Reason = decision.Reason

	if opts.Ledger != nil {
		inv := ledger.Invocation{
			RunID:           id.RunID,
			FullConfigHash:  id.FullHash,
			DataFingerprint: dataFP,
			ArtifactRoot:    id.ArtifactRoot,
			Decision:        decision.Decision.String(),
		}
		invID, err := opts.Ledger.BeginInvocation(ctx, inv)
		if err != nil {
			log.Warn().Err(err).Msg("could not record invocation in ledger; continuing without persistence")
		} else {
			res.invocationID = invID
			if res.EarlyExit {
				if err := opts.Ledger.CompleteInvocation(ctx, invID, ledger.StatusCached, decision.Reason); err != nil {
					log.Warn().Err(err).Msg("could not complete ledger invocation")
				}
			}
		}
	}

	if res.EarlyExit {
		log.Info().Str("run_id", id.RunID).Str("reason", res.Reason).Msg("short-circuit: prior run reused")
	}
	return res, nil
}

// MarkSuccess finalizes a run: it writes the success marker and closes
// the ledger invocation. Called only after every downstream stage
// completed.
func MarkSuccess(ctx context.Context, opts Options, res *Result) error {
	store := snapshot.NewStore(opts.Logger)
	if err := gate.WriteMarker(store, res.ArtifactRoot); err != nil {
		return fmt.Errorf("failed to write success marker: %w", err)
	}
	opts.Logger.Info().Str("artifact_root", res.ArtifactRoot).Msg("wrote success marker")
	if opts.Ledger != nil && res.invocationID != uuid.Nil {
		if err := opts.Ledger.CompleteInvocation(ctx, res.invocationID, ledger.StatusSucceeded, ""); err != nil {
			opts.Logger.Warn().Err(err).Msg("could not complete ledger invocation")
		}
	}
	return nil
}

// MarkFailure closes the ledger invocation as failed. Marker state is
// untouched; an absent marker already means "not completed".
func MarkFailure(ctx context.Context, opts Options, res *Result, cause error) {
	if opts.Ledger == nil || res == nil || res.invocationID == uuid.Nil {
		return
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	if err := opts.Ledger.CompleteInvocation(ctx, res.invocationID, ledger.StatusFailed, reason); err != nil {
		opts.Logger.Warn().Err(err).Msg("could not complete ledger invocation")
	}
}
