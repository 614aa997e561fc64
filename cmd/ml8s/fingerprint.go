package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ml8s/training-harness/internal/fingerprint"
	"github.com/ml8s/training-harness/internal/observability"
)

var fingerprintCommand = &cobra.Command{
	Use:   "fingerprint",
	Short: "Compute the content fingerprint of a data root",
	Long: `Enumerates every file under the data root in sorted path order, resolves a
content token per file (etag, size, or streamed sha256) and prints the
combined digest. The same tree always yields the same digest.`,
	RunE: runFingerprintCmd,
}

var (
	fingerprintRoot string
	fingerprintJSON bool
)

func init() {
	fingerprintCommand.Flags().StringVar(&fingerprintRoot, "root", "", "Data root URI to fingerprint (optional, defaults to DATA_ROOT env var)")
	fingerprintCommand.Flags().BoolVar(&fingerprintJSON, "json", false, "Emit the digest and per-file tokens as JSON on stdout")

	rootCmd.AddCommand(fingerprintCommand)
}

func runFingerprintCmd(cmd *cobra.Command, _ []string) error {
	cfg, _, logger, err := loadPlatform()
	if err != nil {
		return err
	}
	root := cfg.DataRoot
	if cmd.Flags().Changed("root") {
		root = fingerprintRoot
	}
	if root == "" {
		return fmt.Errorf("no data root: set DATA_ROOT or pass --root")
	}

	fp := fingerprint.New(cfg.RetryPolicy(), int(cfg.FingerprintChunk), logger)
	digest, tokens, err := fp.Fingerprint(root)
	if err != nil {
		return fmt.Errorf("fingerprint failed: %w", err)
	}

	if fingerprintJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Root   string                  `json:"root"`
			Digest string                  `json:"digest"`
			Files  []fingerprint.FileToken `json:"files"`
		}{Root: root, Digest: digest, Files: tokens})
	}

	lines := make([]observability.TokenLine, 0, len(tokens))
	for _, t := range tokens {
		lines = append(lines, observability.TokenLine{Path: t.Path, Strategy: t.Strategy, Size: t.Size})
	}
	observability.NewPrinter(os.Stdout).PrintFingerprintAudit(digest, lines)
	return nil
}
