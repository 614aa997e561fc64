// Package main provides the ml8s training-harness CLI: deterministic run
// identity, config snapshots and the idempotence gate for training pipelines.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ml8s/training-harness/internal/envcfg"
	"github.com/ml8s/training-harness/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "ml8s",
	Short: "ML pipeline bootstrap and artifact cache",
	Long:  "ml8s derives a deterministic run identity from the declared environment and the training data, persists a config snapshot, and decides whether a prior run at the same identity can be reused.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadPlatform builds the validated config and the explicit environment map
// from the current process environment, once, at command entry.
func loadPlatform() (*envcfg.PlatformConfig, map[string]string, zerolog.Logger, error) {
	environ := envcfg.Environ(os.Environ())
	cfg, err := envcfg.Load(environ)
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	logger := observability.InitLogger("ml8s", cfg.LogLevel)
	return cfg, environ, logger, nil
}
