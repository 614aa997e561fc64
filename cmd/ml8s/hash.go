package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ml8s/training-harness/internal/envcfg"
	"github.com/ml8s/training-harness/internal/fingerprint"
	"github.com/ml8s/training-harness/internal/identity"
)

var hashCommand = &cobra.Command{
	Use:   "hash",
	Short: "Print the canonical config and the derived run identity",
	Long: `Canonicalizes the identity-relevant configuration from the current
environment, fingerprints the data root, and prints the full hash, run id and
artifact root without touching the artifact store.`,
	RunE: runHashCmd,
}

var (
	hashJSON          bool
	hashSkipData      bool
	hashCanonicalOnly bool
)

func init() {
	hashCommand.Flags().BoolVar(&hashJSON, "json", false, "Emit the identity as JSON on stdout")
	hashCommand.Flags().BoolVar(&hashSkipData, "skip-data", false, "Hash the configuration alone, without the data fingerprint (requires STRICT_DATA_FINGERPRINT=false)")
	hashCommand.Flags().BoolVar(&hashCanonicalOnly, "canonical-only", false, "Print only the canonical JSON form of the configuration")

	rootCmd.AddCommand(hashCommand)
}

func runHashCmd(_ *cobra.Command, _ []string) error {
	cfg, _, logger, err := loadPlatform()
	if err != nil {
		return err
	}

	canonical := envcfg.Canonical(cfg)
	canonicalJSON, err := envcfg.CanonicalJSON(canonical)
	if err != nil {
		return fmt.Errorf("canonicalization failed: %w", err)
	}
	if hashCanonicalOnly {
		fmt.Fprintln(os.Stdout, canonicalJSON)
		return nil
	}

	dataFP := ""
	if !hashSkipData {
		fp := fingerprint.New(cfg.RetryPolicy(), int(cfg.FingerprintChunk), logger)
		digest, _, err := fp.Fingerprint(cfg.DataRoot)
		if err != nil {
			return fmt.Errorf("fingerprint failed: %w", err)
		}
		dataFP = digest
	}

	id, err := identity.Derive(canonicalJSON, dataFP, cfg.StrictDataFingerprint, cfg.PipelineRootURI)
	if err != nil {
		return err
	}

	if hashJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			FullConfigHash  string `json:"full_config_hash"`
			RunID           string `json:"run_id"`
			ArtifactRoot    string `json:"artifact_root"`
			DataFingerprint string `json:"data_fingerprint,omitempty"`
		}{id.FullHash, id.RunID, id.ArtifactRoot, dataFP})
	}

	fmt.Fprintf(os.Stdout, "full_config_hash: %s\n", id.FullHash)
	fmt.Fprintf(os.Stdout, "run_id:           %s\n", id.RunID)
	fmt.Fprintf(os.Stdout, "artifact_root:    %s\n", id.ArtifactRoot)
	if dataFP != "" {
		fmt.Fprintf(os.Stdout, "data_fingerprint: %s\n", dataFP)
	}
	return nil
}
