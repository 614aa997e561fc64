// Package gate decides whether a prior run at an artifact root can be
// trusted and reused, or whether the pipeline must proceed.
package gate

import (
	"github.com/rs/zerolog"

	"github.com/ml8s/training-harness/internal/observability"
	"github.com/ml8s/training-harness/internal/snapshot"
	"github.com/ml8s/training-harness/internal/storage"
)

// MarkerName is the success sentinel object under the artifact root. It
// exists only after the whole downstream pipeline succeeded and is the
// single source of truth for "this run identity completed".
const MarkerName = "success.marker"

// ReasonValidCachedRun is the early-exit reason reported on short-circuit.
const ReasonValidCachedRun = "valid cached run"

// Decision is the gate's classification of the artifact root.
type Decision int

const (
	// NoPriorRun: no success marker, or nothing trustworthy behind it.
	NoPriorRun Decision = iota
	// ValidPriorRun: marker present and the snapshot matches the
	// expected (full hash, data fingerprint) pair.
	ValidPriorRun
	// StalePriorRun: marker present but the snapshot is missing,
	// unreadable or disagrees with the expected identity.
	StalePriorRun
)

// String names the decision for logs and the run ledger.
func (d Decision) String() string {
	switch d {
	case ValidPriorRun:
		return "valid_prior_run"
	case StalePriorRun:
		return "stale_prior_run"
	default:
		return "no_prior_run"
	}
}

// Result is the terminal outcome of one gate check.
type Result struct {
	Decision     Decision
	ShortCircuit bool
	Reason       string
}

// Gate inspects the marker and snapshot at an artifact root. It is not
// mutually exclusive across processes sharing the root; it observes a
// marker object at one instant. True exclusivity needs an external lock.
type Gate struct {
	Store  *snapshot.Store
	Logger zerolog.Logger
}

// New returns a Gate reading snapshots through store.
func New(store *snapshot.Store, logger zerolog.Logger) *Gate {
	return &Gate{Store: store, Logger: logger}
}

// Check classifies artifactRoot against the expected identity and decides
// whether to short-circuit. Every anomaly (unreadable marker, missing or
// corrupt snapshot, hash or fingerprint mismatch) degrades to proceeding
// with a fresh run; an unverifiable cache entry is never trusted silently.
// With forceRerun set, a valid prior run has its marker deleted
// best-effort and the pipeline proceeds.
func (g *Gate) Check(artifactRoot, expectedFullHash, expectedFingerprint string, forceRerun bool) Result {
	markerURI := storage.JoinURI(artifactRoot, MarkerName)
	backend, markerPath, err := storage.Resolve(markerURI)
	if err != nil {
		g.Logger.Warn().Str("uri", markerURI).Err(err).Msg("cannot resolve marker location; treating as no prior run")
		return g.proceed(NoPriorRun)
	}

	present, err := backend.Exists(markerPath)
	if err != nil {
		g.Logger.Warn().Str("uri", markerURI).Err(err).Msg("marker check failed; treating as no prior run")
		return g.proceed(NoPriorRun)
	}
	if !present {
		return g.proceed(NoPriorRun)
	}

	snap, err := g.Store.ReadSnapshot(artifactRoot)
	if err != nil {
		g.Logger.Warn().Str("artifact_root", artifactRoot).Err(err).Msg("snapshot unreadable behind success marker; re-running")
		return g.proceed(StalePriorRun)
	}
	if snap == nil {
		g.Logger.Warn().Str("artifact_root", artifactRoot).Msg("success marker present but snapshot missing; re-running")
		return g.proceed(StalePriorRun)
	}

	gotFingerprint := ""
	if snap.DataFingerprint != nil {
		gotFingerprint = *snap.DataFingerprint
	}
	if snap.FullConfigHash != expectedFullHash || gotFingerprint != expectedFingerprint {
		g.Logger.Warn().
			Str("artifact_root", artifactRoot).
			Str("snapshot_hash", snap.FullConfigHash).
			Str("expected_hash", expectedFullHash).
			Msg("prior run does not match expected identity; re-running")
		return g.proceed(StalePriorRun)
	}

	if forceRerun {
		g.deleteMarker(backend, markerURI, markerPath)
		observability.GateDecisionsTotal.WithLabelValues(observability.DecisionValid).Inc()
		return Result{Decision: ValidPriorRun, ShortCircuit: false, Reason: "force rerun requested"}
	}

	observability.GateDecisionsTotal.WithLabelValues(observability.DecisionValid).Inc()
	g.Logger.Info().Str("artifact_root", artifactRoot).Msg("existing valid run detected; early exit")
	return Result{Decision: ValidPriorRun, ShortCircuit: true, Reason: ReasonValidCachedRun}
}

func (g *Gate) proceed(d Decision) Result {
	observability.GateDecisionsTotal.WithLabelValues(d.String()).Inc()
	return Result{Decision: d, ShortCircuit: false}
}

// deleteMarker removes the success marker before a forced re-run. This is
// the one best-effort cleanup allowed to swallow its error, and it logs
// when it does.
func (g *Gate) deleteMarker(backend storage.Backend, uri, path string) {
	if err := backend.Delete(path); err != nil {
		g.Logger.Warn().Str("uri", uri).Err(err).Msg("could not remove success marker before forced re-run")
		return
	}
	g.Logger.Info().Str("uri", uri).Msg("removed success marker for forced re-run")
}

// WriteMarker atomically creates the zero-length success marker under
// artifactRoot. Called only after the whole downstream pipeline succeeds.
func WriteMarker(store *snapshot.Store, artifactRoot string) error {
	return store.WriteBytes(storage.JoinURI(artifactRoot, MarkerName), nil)
}
