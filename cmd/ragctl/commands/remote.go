package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/landrecords/rag-engine/cmd/ragctl/ui"
	"github.com/landrecords/rag-engine/internal/api/rpc"
)

var (
	serverURL  string
	searchTopK int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search processed chunks on a running API server",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var progressCmd = &cobra.Command{
	Use:   "progress <job-id>",
	Short: "Show a job's progress on a running API server",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgress,
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, progressCmd} {
		c.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "API server base URL")
		rootCmd.AddCommand(c)
	}
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 5, "number of results")
}

func newRPCClient() *rpc.Client {
	return rpc.NewClient(&http.Client{Timeout: 30 * time.Second}, serverURL)
}

func runSearch(cmd *cobra.Command, args []string) error {
	hits, err := newRPCClient().Search(context.Background(), args[0], searchTopK)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(hits) == 0 {
		ui.Info("No matching chunks")
		return nil
	}

	rows := make([][]string, 0, len(hits))
	for _, h := range hits {
		text := h.Translated
		if text == "" {
			text = h.Original
		}
		rows = append(rows, []string{
			fmt.Sprintf("%.0f", h.Score),
			h.JobID,
			h.Pages,
			ui.Truncate(text, 60),
		})
	}
	ui.Table([]string{"Score", "Job", "Pages", "Text"}, rows)
	return nil
}

func runProgress(cmd *cobra.Command, args []string) error {
	p, err := newRPCClient().GetProgress(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("progress: %w", err)
	}

	ui.Table([]string{"Metric", "Value"}, [][]string{
		{"Status", p.Status},
		{"Stage", p.CurrentStage},
		{"Chunks", fmt.Sprintf("%d/%d (%d failed, %d cached)", p.CompletedChunks, p.TotalChunks, p.FailedChunks, p.CachedChunks)},
		{"Progress", fmt.Sprintf("%.1f%%", p.ProgressPercent)},
		{"Elapsed", ui.FormatDuration(time.Duration(p.ElapsedSeconds * float64(time.Second)))},
		{"Remaining", ui.FormatDuration(time.Duration(p.EstimatedRemainingSeconds * float64(time.Second)))},
	})
	for _, e := range p.Errors {
		ui.Warning("%s", e)
	}
	return nil
}
