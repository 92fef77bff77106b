package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/landrecords/rag-engine/cmd/ragctl/ui"
)

var estimateNoTranslate bool

var estimateCmd = &cobra.Command{
	Use:   "estimate <pdf>",
	Short: "Estimate processing time for a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runEstimate,
}

func init() {
	estimateCmd.Flags().BoolVar(&estimateNoTranslate, "no-translate", false, "estimate without translation")
	rootCmd.AddCommand(estimateCmd)
}

func runEstimate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	engine, err := startEngine(ctx)
	if err != nil {
		return err
	}
	defer closeEngine(engine)

	spin := ui.NewSpinner("Counting pages...")
	spin.Start()
	est, err := engine.Manager.Estimate(ctx, args[0], !estimateNoTranslate)
	spin.Stop()
	if err != nil {
		return fmt.Errorf("estimate: %w", err)
	}

	ui.Section("Estimate")
	ui.Table([]string{"Metric", "Value"}, [][]string{
		{"Pages", fmt.Sprintf("%d", est.PageCount)},
		{"Chunks", fmt.Sprintf("%d", est.ChunkCount)},
		{"Translation", fmt.Sprintf("%t", est.IncludesTranslation)},
		{"Estimated time", est.EstimatedFormatted},
	})
	return nil
}
