package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/landrecords/rag-engine/cmd/ragctl/ui"
	"github.com/landrecords/rag-engine/internal/app"
	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/progress"
)

var processFlags struct {
	output      string
	noTranslate bool
	noCache     bool
	sourceLang  string
	targetLang  string
}

var processCmd = &cobra.Command{
	Use:   "process <pdf>",
	Short: "OCR and translate a single document",
	Long: `Process extracts the pages of a PDF, runs OCR and translation chunk by
chunk, and prints a summary. Ctrl-C cancels at the next chunk boundary.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	f := processCmd.Flags()
	f.StringVarP(&processFlags.output, "output", "o", "", "write the document result as JSON to this path")
	f.BoolVar(&processFlags.noTranslate, "no-translate", false, "skip translation")
	f.BoolVar(&processFlags.noCache, "no-cache", false, "bypass the chunk cache")
	f.StringVar(&processFlags.sourceLang, "source-lang", "", "source language (defaults to config)")
	f.StringVar(&processFlags.targetLang, "target-lang", "", "target language (defaults to config)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := startEngine(context.Background())
	if err != nil {
		return err
	}
	defer closeEngine(engine)

	ui.Section("Document Processing")
	ui.Info("Source: %s", args[0])

	jobID, err := engine.Manager.Submit(args[0], domain.Options{
		Translate:  !processFlags.noTranslate,
		UseCache:   !processFlags.noCache,
		SourceLang: processFlags.sourceLang,
		TargetLang: processFlags.targetLang,
	})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if verbose {
		ui.Info("Job: %s", jobID)
	}

	if err := follow(ctx, engine, jobID); err != nil {
		return err
	}

	result, err := engine.Manager.Result(jobID)
	if err != nil {
		return err
	}
	printSummary(result)

	if processFlags.output != "" {
		if err := writeResult(processFlags.output, result); err != nil {
			return err
		}
		ui.Success("Result saved to: %s", processFlags.output)
	}
	return nil
}

// follow renders a spinner while pages are extracted and a chunk bar after
// that. Interrupts turn into a job cancel; the stream still runs to the end.
func follow(ctx context.Context, engine *app.App, jobID string) error {
	events, err := engine.Manager.Subscribe(context.Background(), jobID)
	if err != nil {
		return err
	}

	spin := ui.NewSpinner("Extracting pages...")
	spin.Start()
	spinning := true
	var bar *ui.ProgressBar
	interrupted := ctx.Done()

	for {
		select {
		case <-interrupted:
			interrupted = nil
			if err := engine.Manager.Cancel(jobID); err == nil {
				ui.Warning("Cancelling after the current chunk...")
			}

		case ev, ok := <-events:
			if !ok {
				if spinning {
					spin.Stop()
				}
				return nil
			}
			rec, _ := engine.Manager.Progress(jobID)

			switch ev.Type {
			case domain.EventChunk:
				if spinning {
					spin.Stop()
					spinning = false
				}
				if bar == nil {
					bar = ui.NewProgressBar(int64(rec.TotalChunks), fmt.Sprintf("%d pages", rec.TotalPages))
				}
				bar.Set(chunksDone(rec))

			default:
				if spinning {
					spin.Stop()
					spinning = false
				}
				if bar != nil {
					bar.Finish()
				}
				if ev.Type == domain.EventError {
					ui.Error("Job failed: %s", ev.Error)
				}
			}
		}
	}
}

// chunksDone is the bar position for a record. Failed chunks are already
// included in CompletedChunks.
func chunksDone(rec progress.Record) int64 {
	return int64(rec.CompletedChunks)
}

func printSummary(result *domain.DocumentResult) {
	ui.Section("Summary")
	ui.Table([]string{"Metric", "Value"}, [][]string{
		{"Status", string(result.Status)},
		{"Pages", fmt.Sprintf("%d", result.TotalPages)},
		{"Chunks", fmt.Sprintf("%d", result.TotalChunks)},
		{"Cached", fmt.Sprintf("%d", result.CachedChunks)},
		{"Failed", fmt.Sprintf("%d", result.FailedChunks)},
		{"Duration", ui.FormatDuration(result.Duration)},
	})

	for _, c := range result.Chunks {
		if c.Failed() {
			ui.Warning("Pages %s failed: %s", c.Pages, c.Error)
		}
	}

	switch result.Status {
	case domain.JobStatusCompleted:
		ui.Success("Processing completed")
	case domain.JobStatusCompletedWithErrors:
		ui.Warning("Processing completed with %d failed chunks", result.FailedChunks)
	case domain.JobStatusCancelled:
		ui.Warning("Processing cancelled")
	default:
		ui.Error("Processing %s", result.Status)
	}
}

func writeResult(path string, result *domain.DocumentResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
