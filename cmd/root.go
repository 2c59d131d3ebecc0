package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/repro-cli/internal/catalog"
	"github.com/sells-group/repro-cli/internal/config"
	"github.com/sells-group/repro-cli/internal/randomness"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "repro-cli",
	Short: "Reproducibility and provenance substrate for research pipelines",
	Long:  "Governs randomness, allocates deterministic run identity, tracks computation status, and persists provenance-wrapped results with a permanent per-run audit trail.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// initGovernor builds the process governor with the configured default mode.
func initGovernor() *randomness.Governor {
	return randomness.New(randomness.Mode(cfg.Randomness.Mode))
}

// initCatalog opens and migrates the audit catalog.
func initCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	if err := cat.Migrate(cmd.Context()); err != nil {
		cat.Close() //nolint:errcheck
		return nil, err
	}
	return cat, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
