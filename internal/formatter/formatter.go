// package formatter renders prediction results as CSV, Markdown, plain text, JSON or a terminal table
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/shared"
)

// Format names an output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatTable    Format = "table"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatText, FormatTable}

// ParseFormat resolves a format name, accepting "md" and "txt" as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt":
		return FormatText, nil
	case "table":
		return FormatTable, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

// Ext returns the file extension conventionally used for f.
func (f Format) Ext() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatMarkdown:
		return ".md"
	case FormatText, FormatTable:
		return ".txt"
	}
	return ".json"
}

// Report is the classification of one image.
type Report struct {
	Source  string                    `json:"source"`
	Results []models.PredictionResult `json:"results"`
}

// Render encodes reports in format f. A single JSON report is rendered as the bare result array,
// the same shape POST /predict returns.
func Render(f Format, reports []Report, pretty bool) ([]byte, error) {
	switch f {
	case FormatJSON:
		if len(reports) == 1 {
			return shared.MarshalJSON(reports[0].Results, pretty)
		}
		return shared.MarshalJSON(reports, pretty)
	case FormatCSV:
		return ExportToCSV(reports)
	case FormatMarkdown:
		return ExportToMarkdown(reports)
	case FormatText:
		return ExportToText(reports)
	case FormatTable:
		return []byte(Table(reports) + "\n"), nil
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
}

func percent(c float64) string {
	return strconv.FormatFloat(c*100, 'f', 2, 64) + "%"
}

// ExportToCSV converts reports to CSV with columns: Source, Model, Guess, Confidence, P0..P9
func ExportToCSV(reports []Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Source", "Model", "Guess", "Confidence"}
	for d := range models.NumClasses {
		headers = append(headers, "P"+strconv.Itoa(d))
	}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range reports {
		for _, res := range r.Results {
			record := []string{
				r.Source,
				res.Name,
				strconv.Itoa(res.Guess.Digit),
				strconv.FormatFloat(res.Guess.Confidence, 'f', 6, 64),
			}
			for _, p := range res.Output {
				record = append(record, strconv.FormatFloat(p.Confidence, 'f', 6, 64))
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts reports to a Markdown document with one table per image
func ExportToMarkdown(reports []Report) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Predictions\n\n")
	buf.WriteString(fmt.Sprintf("**Images**: %d\n\n", len(reports)))

	for _, r := range reports {
		buf.WriteString(fmt.Sprintf("## %s\n\n", r.Source))
		buf.WriteString("| Model | Guess | Confidence |\n")
		buf.WriteString("|---|---|---|\n")
		for _, res := range r.Results {
			buf.WriteString(fmt.Sprintf("| %s | %d | %s |\n", res.Name, res.Guess.Digit, percent(res.Guess.Confidence)))
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts reports to plain text, one line per model
func ExportToText(reports []Report) ([]byte, error) {
	var buf bytes.Buffer

	for i, r := range reports {
		if i > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(fmt.Sprintf("Image: %s\n", r.Source))
		for _, res := range r.Results {
			buf.WriteString(fmt.Sprintf("  %-4s %d (%s)\n", res.Name, res.Guess.Digit, percent(res.Guess.Confidence)))
		}
	}

	return buf.Bytes(), nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	guessStyle  = cellStyle.Bold(true).Foreground(lipgloss.Color("#04B575"))
)

// Table renders reports as a styled terminal table with the full distribution per model.
// The guessed digit's column is highlighted.
func Table(reports []Report) string {
	headers := []string{"Image", "Model", "Guess"}
	for d := range models.NumClasses {
		headers = append(headers, strconv.Itoa(d))
	}

	var rows [][]string
	guesses := map[int]int{}
	for _, r := range reports {
		for _, res := range r.Results {
			row := []string{filepath.Base(r.Source), res.Name, strconv.Itoa(res.Guess.Digit)}
			for _, p := range res.Output {
				row = append(row, strconv.FormatFloat(p.Confidence, 'f', 3, 64))
			}
			guesses[len(rows)] = res.Guess.Digit
			rows = append(rows, row)
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == guesses[row]+3:
				return guessStyle
			}
			return cellStyle
		})

	return t.String()
}

// HistoryTable renders persisted prediction records newest first.
func HistoryTable(recs []*models.PredictionRecord) string {
	rows := make([][]string, len(recs))
	for i, rec := range recs {
		rows[i] = []string{
			rec.CreatedAt().Local().Format("2006-01-02 15:04:05"),
			rec.RequestID,
			rec.Model,
			strconv.Itoa(rec.Digit),
			percent(rec.Confidence),
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Time", "Request", "Model", "Digit", "Confidence").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	return t.String()
}

// WriteExport renders reports in format f and writes them to path.
//
// An empty path defaults to predictions{ext}. Parent directories are created as needed.
func WriteExport(f Format, reports []Report, path string, pretty bool) (string, error) {
	if path == "" {
		path = "predictions" + f.Ext()
	}

	data, err := Render(f, reports, pretty)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", f, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}

	return path, nil
}

// ManifestEntry summarizes one image of a batch run.
type ManifestEntry struct {
	Source    string         `json:"source"`
	RequestID string         `json:"request_id,omitempty"`
	Guesses   map[string]int `json:"guesses,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Manifest describes the output of a batch run.
type Manifest struct {
	CreatedAt time.Time       `json:"created_at"`
	Format    Format          `json:"format"`
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Report    string          `json:"report,omitempty"`
	Images    []ManifestEntry `json:"images"`
}

// WriteManifest writes m as indented JSON to path
func WriteManifest(m *Manifest, path string) error {
	data, err := shared.MarshalJSON(m, true)
	if err != nil {
		return fmt.Errorf("failed to generate manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
