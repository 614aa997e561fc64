package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ml8s/training-harness/internal/gate"
	"github.com/ml8s/training-harness/internal/observability"
	"github.com/ml8s/training-harness/internal/snapshot"
)

var markSuccessCommand = &cobra.Command{
	Use:   "mark-success",
	Short: "Write the success marker for a completed run",
	Long: `Atomically creates the success marker under the artifact root. Run this
only after every downstream stage finished; the next bootstrap at the same
identity will then short-circuit.`,
	RunE: runMarkSuccessCmd,
}

var markSuccessArtifactRoot string

func init() {
	markSuccessCommand.Flags().StringVar(&markSuccessArtifactRoot, "artifact-root", "", "Artifact root of the completed run (required)")
	_ = markSuccessCommand.MarkFlagRequired("artifact-root")

	rootCmd.AddCommand(markSuccessCommand)
}

func runMarkSuccessCmd(_ *cobra.Command, _ []string) error {
	// The artifact root is explicit, so the full declared environment is
	// not needed here.
	logger := observability.InitLogger("ml8s", os.Getenv("LOG_LEVEL"))

	store := snapshot.NewStore(logger)
	if snap, err := store.ReadSnapshot(markSuccessArtifactRoot); err != nil {
		return fmt.Errorf("refusing to mark success: %w", err)
	} else if snap == nil {
		return fmt.Errorf("refusing to mark success: no config snapshot under %s", markSuccessArtifactRoot)
	}

	if err := gate.WriteMarker(store, markSuccessArtifactRoot); err != nil {
		return fmt.Errorf("failed to write success marker: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Wrote success marker under %s\n", markSuccessArtifactRoot)
	return nil
}
