package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/desertthunder/digits/internal/formatter"
	"github.com/desertthunder/digits/internal/shared"
	"github.com/desertthunder/digits/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Batch classifies every image under the given paths and writes a report plus manifest.
func (r *Runner) Batch(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: at least one file or directory", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	runner, err := r.classifiers()
	if err != nil {
		return err
	}

	var recorder tasks.Recorder
	if cmd.Bool("record") {
		repo, err := r.predictions()
		if err != nil {
			return err
		}
		recorder = repo
	}

	opts := tasks.BatchOpts{
		Format:     format,
		OutputDir:  cmd.String("output-dir"),
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
	}

	engine := tasks.NewBatchEngine(runner, recorder, shared.WithLogger(r.logger, "task", "batch"))

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Info(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
		}
	}()

	result, err := engine.Run(ctx, progress, paths, opts)
	close(progress)
	<-done

	if result != nil {
		r.printBatchSummary(result)
	}
	return err
}

func (r *Runner) printBatchSummary(result *tasks.BatchResult) {
	r.writePlainHeader("Batch Summary")
	r.writePlain("Images:    %d\n", result.Total)
	r.writePlain("Succeeded: %d\n", result.Succeeded)
	r.writePlain("Failed:    %d\n", result.Failed)

	for _, res := range result.Results {
		if res.Error != nil {
			r.writePlain("  ✗ %s: %v\n", filepath.Base(res.Path), res.Error)
		}
	}

	if result.ReportPath != "" {
		r.writePlain("\n✓ Report saved to %s\n", result.ReportPath)
	}
	if result.ManifestPath != "" {
		r.writePlain("✓ Manifest saved to %s\n", result.ManifestPath)
	}
}
