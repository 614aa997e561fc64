package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ml8s/training-harness/internal/ledger"
	"github.com/ml8s/training-harness/internal/observability"
)

var runsCommand = &cobra.Command{
	Use:   "runs",
	Short: "List recorded bootstrap invocations from the run ledger",
	RunE:  runRunsCmd,
}

var (
	runsLedgerURL string
	runsRunID     string
	runsLimit     int
	runsJSON      bool
)

func init() {
	runsCommand.Flags().StringVar(&runsLedgerURL, "ledger-url", "", "PostgreSQL connection URL (optional, defaults to LEDGER_URL env var)")
	runsCommand.Flags().StringVar(&runsRunID, "run-id", "", "Show only invocations for this run id")
	runsCommand.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of invocations to list")
	runsCommand.Flags().BoolVar(&runsJSON, "json", false, "Emit invocations as JSON on stdout")

	rootCmd.AddCommand(runsCommand)
}

func runRunsCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	logger := observability.InitLogger("ml8s", os.Getenv("LOG_LEVEL"))

	url := os.Getenv("LEDGER_URL")
	if cmd.Flags().Changed("ledger-url") {
		url = runsLedgerURL
	}
	if url == "" {
		return fmt.Errorf("no ledger configured: set LEDGER_URL or pass --ledger-url")
	}

	led, err := ledger.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer led.Close()
	if err := led.EnsureSchema(ctx); err != nil {
		return err
	}

	var invocations []ledger.Invocation
	if runsRunID != "" {
		invocations, err = led.FindByRunID(ctx, runsRunID)
	} else {
		invocations, err = led.ListRecent(ctx, runsLimit)
	}
	if err != nil {
		return err
	}
	if len(invocations) == 0 {
		logger.Info().Msg("no invocations recorded")
		return nil
	}

	if runsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(invocations)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tDECISION\tSTATUS\tSTARTED\tARTIFACT ROOT")
	for _, inv := range invocations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			inv.RunID, inv.Decision, inv.Status,
			inv.StartedAt.Format("2006-01-02 15:04:05"), inv.ArtifactRoot)
	}
	return w.Flush()
}
