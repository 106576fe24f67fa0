package main

import (
	"context"
	"time"

	"github.com/desertthunder/digits/internal/formatter"
	"github.com/urfave/cli/v3"
)

type historyEntry struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	Model      string    `json:"model"`
	Digit      int       `json:"digit"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

type statsEntry struct {
	Model          string  `json:"model"`
	Count          int     `json:"count"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// History lists recorded predictions, newest first, or per-model statistics with --stats.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.predictions()
	if err != nil {
		return err
	}
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if cmd.Bool("stats") {
		stats, err := repo.Stats()
		if err != nil {
			return err
		}

		if useJSON {
			entries := make([]statsEntry, len(stats))
			for i, s := range stats {
				entries[i] = statsEntry{Model: s.Model, Count: s.Count, MeanConfidence: s.MeanConfidence}
			}
			return r.writeJSON(entries, pretty)
		}

		if len(stats) == 0 {
			return r.writePlain("No predictions recorded\n")
		}
		r.writePlainHeader("Prediction Stats")
		for _, s := range stats {
			r.writePlain("%-4s %6d records, mean confidence %.2f%%\n", s.Model, s.Count, s.MeanConfidence*100)
		}
		return nil
	}

	criteria := map[string]any{
		"limit":      cmd.Int("limit"),
		"model":      cmd.String("model"),
		"request_id": cmd.String("request-id"),
	}
	if since := cmd.Duration("since"); since > 0 {
		criteria["since"] = time.Now().Add(-since)
	}

	recs, err := repo.List(criteria)
	if err != nil {
		return err
	}

	if useJSON {
		entries := make([]historyEntry, len(recs))
		for i, rec := range recs {
			entries[i] = historyEntry{
				ID:         rec.ID(),
				RequestID:  rec.RequestID,
				Model:      rec.Model,
				Digit:      rec.Digit,
				Confidence: rec.Confidence,
				CreatedAt:  rec.CreatedAt(),
			}
		}
		return r.writeJSON(entries, pretty)
	}

	if len(recs) == 0 {
		return r.writePlain("No predictions recorded\n")
	}
	return r.writePlain("%s\n", formatter.HistoryTable(recs))
}
