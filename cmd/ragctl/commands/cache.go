package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/landrecords/rag-engine/cmd/ragctl/ui"
)

var cacheOlderThan time.Duration

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the chunk cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached chunk results",
	Long: `Clear removes cached chunk results from the configured cache backend.
With --older-than only entries created before that age are removed.`,
	Args: cobra.NoArgs,
	RunE: runCacheClear,
}

func init() {
	cacheClearCmd.Flags().DurationVar(&cacheOlderThan, "older-than", 0, "only remove entries older than this (e.g. 72h)")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	engine, err := startEngine(ctx)
	if err != nil {
		return err
	}
	defer closeEngine(engine)

	removed, err := engine.Manager.ClearCache(ctx, cacheOlderThan)
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	ui.Success("Removed %d cached chunks", removed)
	return nil
}
