package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/genomekit/refseqdl/internal/config"
	"github.com/genomekit/refseqdl/internal/pipeline"
)

// downloadOptions carries the parsed CLI flags for a download run.
type downloadOptions struct {
	Outdir     string
	ConfigPath string
	CatalogURL string
	Verbose    bool
}

// runDownload resolves the run configuration (defaults, then config
// file, then flags), builds the pipeline, and executes it.
func runDownload(opts downloadOptions) error {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		parsed, err := config.ParseFile(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", opts.ConfigPath, err)
		}
		cfg = parsed
	}

	// Flags override config file values.
	if opts.Outdir != "" {
		cfg.Outdir = opts.Outdir
	}
	if opts.CatalogURL != "" {
		cfg.CatalogURL = opts.CatalogURL
	}
	if cfg.Outdir == "" {
		return fmt.Errorf("output directory is required (use -o or set outdir in the config)")
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	p, err := pipeline.New(pipeline.Options{
		CatalogURL: cfg.CatalogURL,
		Outdir:     cfg.Outdir,
		Filter:     cfg.FilterSpec(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := p.Run(ctx)
	if summary != nil {
		logger.Info("run finished",
			"total_records", summary.TotalRecords,
			"filtered_records", summary.FilteredRecords,
			"completed", summary.Completed,
			"skipped", summary.Skipped,
			"failed", len(summary.Failed))
	}
	return err
}
