package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/landrecords/rag-engine/cmd/ragctl/ui"
	"github.com/landrecords/rag-engine/internal/app"
	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/jobs"
)

var batchFlags struct {
	outputDir   string
	noTranslate bool
	noCache     bool
}

var batchCmd = &cobra.Command{
	Use:   "batch <pdf>...",
	Short: "Process several documents concurrently",
	Long: `Batch submits every document to the engine's job queue and shows one
progress bar per document. Documents beyond the queue depth are reported
and skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.StringVarP(&batchFlags.outputDir, "output-dir", "o", "", "write each document result as JSON into this directory")
	f.BoolVar(&batchFlags.noTranslate, "no-translate", false, "skip translation")
	f.BoolVar(&batchFlags.noCache, "no-cache", false, "bypass the chunk cache")
	rootCmd.AddCommand(batchCmd)
}

type batchItem struct {
	source string
	jobID  string
	bar    *mpb.Bar
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := startEngine(context.Background())
	if err != nil {
		return err
	}
	defer closeEngine(engine)

	ui.Section("Batch Processing")

	opts := domain.Options{
		Translate: !batchFlags.noTranslate,
		UseCache:  !batchFlags.noCache,
	}

	var items []*batchItem
	for _, src := range args {
		jobID, err := engine.Manager.Submit(src, opts)
		if err != nil {
			if errors.Is(err, jobs.ErrOverloaded) {
				ui.Warning("Skipped %s: job queue is full", src)
			} else {
				ui.Error("Skipped %s: %v", src, err)
			}
			continue
		}
		items = append(items, &batchItem{source: src, jobID: jobID})
	}
	if len(items) == 0 {
		return fmt.Errorf("no documents were accepted")
	}

	progress := ui.NewMultiProgress()
	for _, item := range items {
		item.bar = progress.AddDocument(filepath.Base(item.source))
	}

	go func() {
		<-ctx.Done()
		for _, item := range items {
			_ = engine.Manager.Cancel(item.jobID)
		}
	}()

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item *batchItem) {
			defer wg.Done()
			trackBatchItem(engine, item)
		}(item)
	}
	wg.Wait()
	progress.Wait()

	return summarizeBatch(engine, items)
}

// trackBatchItem drives one document's bar from its event stream.
func trackBatchItem(engine *app.App, item *batchItem) {
	events, err := engine.Manager.Subscribe(context.Background(), item.jobID)
	if err != nil {
		item.bar.Abort(false)
		return
	}

	for ev := range events {
		rec, _ := engine.Manager.Progress(item.jobID)
		switch ev.Type {
		case domain.EventChunk:
			item.bar.SetTotal(int64(rec.TotalChunks), false)
			item.bar.SetCurrent(chunksDone(rec))
		case domain.EventComplete:
			if ev.Status == domain.JobStatusCancelled {
				item.bar.Abort(false)
				continue
			}
			item.bar.SetTotal(-1, true)
		case domain.EventError:
			item.bar.Abort(false)
		}
	}
}

func summarizeBatch(engine *app.App, items []*batchItem) error {
	ui.Section("Summary")

	var rows [][]string
	failed := 0
	for _, item := range items {
		result, err := engine.Manager.Result(item.jobID)
		if err != nil {
			failed++
			rows = append(rows, []string{filepath.Base(item.source), "failed", "-", "-", err.Error()})
			continue
		}
		rows = append(rows, []string{
			filepath.Base(item.source),
			string(result.Status),
			fmt.Sprintf("%d", result.TotalPages),
			fmt.Sprintf("%d/%d", result.TotalChunks-result.FailedChunks, result.TotalChunks),
			ui.FormatDuration(result.Duration),
		})

		if batchFlags.outputDir != "" {
			name := filepath.Base(item.source)
			path := filepath.Join(batchFlags.outputDir, name[:len(name)-len(filepath.Ext(name))]+".json")
			if err := writeResult(path, result); err != nil {
				ui.Error("%s: %v", item.source, err)
			}
		}
	}
	ui.Table([]string{"Document", "Status", "Pages", "Chunks", "Duration"}, rows)

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(items))
	}
	ui.Success("Processed %d documents", len(items))
	return nil
}
