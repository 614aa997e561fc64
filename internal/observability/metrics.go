package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gate decision label values.
const (
	DecisionNoPrior = "no_prior_run"
	DecisionValid   = "valid_prior_run"
	DecisionStale   = "stale_prior_run"
)

var (
	// GateDecisionsTotal counts idempotence gate outcomes.
	GateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ml8s_gate_decisions_total",
			Help: "Total idempotence gate decisions by outcome.",
		},
		[]string{"decision"},
	)

	// FingerprintStrategyTotal counts which token strategy resolved each
	// file during fingerprinting.
	FingerprintStrategyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ml8s_fingerprint_strategy_total",
			Help: "Files fingerprinted, by token strategy.",
		},
		[]string{"strategy"},
	)

	// StorageRetriesTotal counts retried storage operations.
	StorageRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ml8s_storage_retries_total",
			Help: "Storage operations that needed at least one retry.",
		},
	)

	// SnapshotWritesTotal counts persisted config snapshots.
	SnapshotWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ml8s_snapshot_writes_total",
			Help: "Config snapshots durably written.",
		},
	)
)

func init() {
	prometheus.MustRegister(GateDecisionsTotal)
	prometheus.MustRegister(FingerprintStrategyTotal)
	prometheus.MustRegister(StorageRetriesTotal)
	prometheus.MustRegister(SnapshotWritesTotal)

	// Pre-initialize label combinations so they report 0 from startup.
	for _, d := range []string{DecisionNoPrior, DecisionValid, DecisionStale} {
		GateDecisionsTotal.WithLabelValues(d)
	}
}

// ServeMetrics exposes /metrics on addr for the lifetime of the
// invocation. Long fingerprinting runs can be scraped while in flight.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
