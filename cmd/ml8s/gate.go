package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ml8s/training-harness/internal/envcfg"
	"github.com/ml8s/training-harness/internal/fingerprint"
	"github.com/ml8s/training-harness/internal/gate"
	"github.com/ml8s/training-harness/internal/identity"
	"github.com/ml8s/training-harness/internal/observability"
	"github.com/ml8s/training-harness/internal/snapshot"
)

var gateCommand = &cobra.Command{
	Use:   "gate",
	Short: "Check whether a valid prior run exists for the current identity",
	Long: `Derives the run identity and inspects the artifact root for a success
marker and matching snapshot, without writing anything. Useful for schedulers
that want the decision before launching the pipeline.`,
	RunE: runGateCmd,
}

var gateJSON bool

func init() {
	gateCommand.Flags().BoolVar(&gateJSON, "json", false, "Emit the gate decision as JSON on stdout")

	rootCmd.AddCommand(gateCommand)
}

func runGateCmd(_ *cobra.Command, _ []string) error {
	cfg, _, logger, err := loadPlatform()
	if err != nil {
		return err
	}

	canonical := envcfg.Canonical(cfg)
	canonicalJSON, err := envcfg.CanonicalJSON(canonical)
	if err != nil {
		return fmt.Errorf("canonicalization failed: %w", err)
	}
	fp := fingerprint.New(cfg.RetryPolicy(), int(cfg.FingerprintChunk), logger)
	dataFP, _, err := fp.Fingerprint(cfg.DataRoot)
	if err != nil {
		return fmt.Errorf("fingerprint failed: %w", err)
	}
	id, err := identity.Derive(canonicalJSON, dataFP, cfg.StrictDataFingerprint, cfg.PipelineRootURI)
	if err != nil {
		return err
	}

	store := snapshot.NewStore(logger)
	res := gate.New(store, logger).Check(id.ArtifactRoot, id.FullHash, dataFP, false)

	if gateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID        string `json:"run_id"`
			ArtifactRoot string `json:"artifact_root"`
			Decision     string `json:"decision"`
			ShortCircuit bool   `json:"short_circuit"`
			Reason       string `json:"reason,omitempty"`
		}{id.RunID, id.ArtifactRoot, res.Decision.String(), res.ShortCircuit, res.Reason})
	}

	observability.NewPrinter(os.Stdout).PrintGateDecision(res.Decision.String(), res.ShortCircuit, res.Reason)
	return nil
}
