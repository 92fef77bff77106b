// Package commands implements the ragctl subcommands.
package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/landrecords/rag-engine/cmd/ragctl/ui"
	"github.com/landrecords/rag-engine/internal/app"
	"github.com/landrecords/rag-engine/internal/config"
	"github.com/landrecords/rag-engine/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Process large land-record PDFs with OCR and translation",
	Long: `ragctl runs the RAG engine locally against scanned land-record PDFs:
it extracts pages, runs OCR and translation chunk by chunk with caching,
and reports progress while it works. It can also query a running API server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Init(noColor)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults to $CONFIG_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger keeps the terminal quiet unless --verbose is set.
func newLogger(cfg *config.Config) *observability.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: cfg.Observability.ServiceName,
	})
}

// startEngine builds and starts an in-process engine.
func startEngine(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	engine, err := app.New(ctx, cfg, newLogger(cfg))
	if err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}
	engine.Start(ctx)
	return engine, nil
}

// shutdownTimeout bounds how long closing the engine may wait for runners.
const shutdownTimeout = 30 * time.Second

func closeEngine(engine *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := engine.Close(ctx); err != nil && verbose {
		ui.Warning("Engine shutdown: %v", err)
	}
}
