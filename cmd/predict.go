package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/digits/internal/formatter"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/preprocess"
	"github.com/desertthunder/digits/internal/shared"
	"github.com/urfave/cli/v3"
)

// Predict classifies one image file and prints or saves the result.
func (r *Runner) Predict(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("image")
	if path == "" {
		return fmt.Errorf("%w: image path", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	pretty := cmd.Bool("pretty")

	runner, err := r.classifiers()
	if err != nil {
		return err
	}

	x, err := preprocess.FromFile(path)
	if err != nil {
		return err
	}

	results, err := runner.Run(ctx, x)
	if err != nil {
		return fmt.Errorf("inference failed: %w", err)
	}
	r.logger.Debug("classified image", "path", path, "models", len(results))

	if cmd.Bool("record") {
		if err := r.record(results); err != nil {
			return err
		}
	}

	reports := []formatter.Report{{Source: path, Results: results}}

	if output := cmd.String("output"); output != "" {
		written, err := formatter.WriteExport(format, reports, output, pretty)
		if err != nil {
			return err
		}
		r.writePlain("✓ Saved %s report to %s\n", format, written)
		return nil
	}

	data, err := formatter.Render(format, reports, pretty)
	if err != nil {
		return err
	}
	if n := len(data); n == 0 || data[n-1] != '\n' {
		data = append(data, '\n')
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// record stores the guess of each model under a fresh request ID.
func (r *Runner) record(results []models.PredictionResult) error {
	repo, err := r.predictions()
	if err != nil {
		return err
	}

	requestID := shared.GenerateID()
	recs := make([]*models.PredictionRecord, len(results))
	for i, res := range results {
		recs[i] = models.NewPredictionRecord(requestID, res)
	}
	if err := repo.CreateAll(recs); err != nil {
		return fmt.Errorf("failed to record predictions: %w", err)
	}
	r.logger.Info("recorded predictions", "request_id", requestID)
	return nil
}
