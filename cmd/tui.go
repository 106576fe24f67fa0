package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/digits/internal/formatter"
	"github.com/desertthunder/digits/internal/shared"
	"github.com/desertthunder/digits/internal/tasks"
	"github.com/desertthunder/digits/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI over the images found under the given paths.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: at least one image or directory", shared.ErrMissingArgument)
	}

	files, err := tasks.Discover(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no images found", shared.ErrInvalidInput)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.config.Log.Level)
	r.SetLogger(fileLogger)

	runner, err := r.classifiers()
	if err != nil {
		return err
	}

	engine := tasks.NewBatchEngine(runner, nil, shared.WithLogger(fileLogger, "task", "batch"))
	opts := tasks.BatchOpts{Format: formatter.FormatCSV, OutputDir: cmd.String("output-dir")}

	model := ui.NewModel(ctx, files, runner, engine, opts)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
