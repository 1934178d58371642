package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the SQL index of the configured ledgers",
	Long: `Read ledger.path and every index.ledgers entry and replace their rows in
the index database. Rebuilding is idempotent.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := syncIndex(cmd.Context(), cfg); err != nil {
		return fmt.Errorf("indexing ledgers: %w", err)
	}

	log.WithField("ledgers", len(cfg.LedgerPaths())).Info("Index rebuilt")

	return nil
}
