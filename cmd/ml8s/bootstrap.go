package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ml8s/training-harness/internal/ledger"
	"github.com/ml8s/training-harness/internal/observability"
	"github.com/ml8s/training-harness/internal/pipeline"
)

var bootstrapCommand = &cobra.Command{
	Use:   "bootstrap",
	Short: "Derive the run identity, persist the snapshot and run the idempotence gate",
	Long: `Loads the declared environment, canonicalizes the identity-relevant
configuration, fingerprints the data root, derives run_id and artifact_root,
persists config_snapshot.json and consults the success marker.

Exits 0 with early_exit=true when a valid prior run exists at the same
identity; downstream stages should then be skipped.`,
	RunE: runBootstrapCmd,
}

var (
	bootstrapForceRerun  bool
	bootstrapVerbose     bool
	bootstrapJSON        bool
	bootstrapLedgerURL   string
	bootstrapMetricsAddr string
)

func init() {
	bootstrapCommand.Flags().BoolVar(&bootstrapForceRerun, "force-rerun", false, "Ignore a valid prior run and recompute (removes the success marker)")
	bootstrapCommand.Flags().BoolVarP(&bootstrapVerbose, "verbose", "v", false, "Print detailed identity and fingerprint information")
	bootstrapCommand.Flags().BoolVar(&bootstrapJSON, "json", false, "Emit the bootstrap result as JSON on stdout")
	bootstrapCommand.Flags().StringVar(&bootstrapLedgerURL, "ledger-url", "", "PostgreSQL connection URL for the run ledger (optional, defaults to LEDGER_URL env var)")
	bootstrapCommand.Flags().StringVar(&bootstrapMetricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address while bootstrapping (optional, defaults to METRICS_ADDR env var)")

	rootCmd.AddCommand(bootstrapCommand)
}

func runBootstrapCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, environ, logger, err := loadPlatform()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("force-rerun") {
		cfg.ForceRerun = bootstrapForceRerun
	}

	metricsAddr := cfg.MetricsAddr
	if cmd.Flags().Changed("metrics-addr") {
		metricsAddr = bootstrapMetricsAddr
	}
	if metricsAddr != "" {
		srv := observability.ServeMetrics(metricsAddr)
		defer func() { _ = srv.Close() }()
	}

	ledgerURL := cfg.LedgerURL
	if cmd.Flags().Changed("ledger-url") {
		ledgerURL = bootstrapLedgerURL
	}
	led := connectLedger(ctx, ledgerURL, logger)
	if led != nil {
		defer led.Close()
	}

	opts := pipeline.Options{Config: cfg, Environ: environ, Logger: logger, Ledger: led}
	res, err := pipeline.Bootstrap(ctx, opts)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	if bootstrapJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintIdentity(&observability.IdentitySummary{
		RunID:           res.RunID,
		FullConfigHash:  res.FullConfigHash,
		DataFingerprint: res.DataFingerprint,
		ArtifactRoot:    res.ArtifactRoot,
		SnapshotURI:     res.SnapshotURI,
	})
	if bootstrapVerbose {
		lines := make([]observability.TokenLine, 0, len(res.FileTokens))
		for _, t := range res.FileTokens {
			lines = append(lines, observability.TokenLine{Path: t.Path, Strategy: t.Strategy, Size: t.Size})
		}
		printer.PrintFingerprintAudit(res.DataFingerprint, lines)
	}
	printer.PrintGateDecision(res.Decision, res.EarlyExit, res.Reason)
	return nil
}

// connectLedger opens the run ledger when a URL is configured. Ledger
// persistence is optional: a failed connection is logged and the
// invocation continues without it.
func connectLedger(ctx context.Context, url string, logger zerolog.Logger) *ledger.Ledger {
	if url == "" {
		return nil
	}
	led, err := ledger.Connect(ctx, url)
	if err != nil {
		logger.Warn().Err(err).Msg("could not connect to run ledger; continuing without persistence")
		return nil
	}
	if err := led.EnsureSchema(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not ensure ledger schema; continuing without persistence")
		led.Close()
		return nil
	}
	return led
}
