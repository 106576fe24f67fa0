package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/digits/internal/formatter"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/preprocess"
	"github.com/desertthunder/digits/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultWorkers = 4
	maxWorkers     = 16
	manifestName   = "batch_manifest.json"
)

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// BatchOpts contains configuration for batch classification.
type BatchOpts struct {
	Format     formatter.Format // Report format (default: json)
	OutputDir  string           // Output directory (default: digits_batch_{epoch})
	NumWorkers int              // Concurrent workers (default: 4, max 16)
	RateLimit  float64          // Images per second, 0 means unlimited
}

// ImageResult is the outcome of classifying one file.
type ImageResult struct {
	Path      string
	RequestID string
	Results   []models.PredictionResult
	Error     error
}

// BatchResult contains the outcome of a batch run in input order.
type BatchResult struct {
	Total           int
	Succeeded       int
	Failed          int
	Results         []ImageResult
	OutputDirectory string
	ReportPath      string
	ManifestPath    string
}

type batchJob struct {
	index int
	path  string
}

type batchOutcome struct {
	index int
	res   ImageResult
}

// Discover expands paths into a sorted, de-duplicated list of image files.
//
// Directories contribute their image files (by extension, non-recursive); files are taken as given.
func Discover(paths []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(p))
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		for _, e := range entries {
			if e.IsDir() || !slices.Contains(imageExts, strings.ToLower(filepath.Ext(e.Name()))) {
				continue
			}
			add(filepath.Join(p, e.Name()))
		}
	}

	slices.Sort(files)
	return files, nil
}

// Run classifies every image under paths with a worker pool, then writes a report in
// opts.Format and a JSON manifest to the output directory.
//
// Per-image failures are reported in the result and never abort the run.
// Cancelling ctx stops scheduling new images and returns the partial result with ctx's error.
func (e *BatchEngine) Run(ctx context.Context, prog chan<- ProgressUpdate, paths []string, opts BatchOpts) (*BatchResult, error) {
	if e.classifier == nil {
		return nil, fmt.Errorf("%w: classifier not initialized", shared.ErrServiceUnavailable)
	}

	files, err := Discover(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images found", shared.ErrInvalidInput)
	}
	e.sendProgress(prog, discoveredUpdate(len(files)))

	if opts.Format == "" {
		opts.Format = formatter.FormatJSON
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("digits_batch_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultWorkers
	}
	if opts.NumWorkers > maxWorkers {
		opts.NumWorkers = maxWorkers
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	jobs := make(chan batchJob, len(files))
	outcomes := make(chan batchOutcome, len(files))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.worker(ctx, &wg, jobs, outcomes)
	}

	go func() {
		defer close(jobs)
		for i, p := range files {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			jobs <- batchJob{index: i, path: p}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	slots := make([]*ImageResult, len(files))
	completed := 0
	for o := range outcomes {
		completed++
		res := o.res
		slots[o.index] = &res
		e.sendProgress(prog, classifiedUpdate(completed, len(files), res))
	}

	result := &BatchResult{Total: len(files), OutputDirectory: opts.OutputDir}
	for _, res := range slots {
		if res == nil {
			continue
		}
		result.Results = append(result.Results, *res)
		if res.Error != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if err := e.writeOutputs(result, opts); err != nil {
		return result, fmt.Errorf("batch completed but failed to write output: %w", err)
	}
	e.sendProgress(prog, reportUpdate(result.ManifestPath))
	return result, nil
}

// worker classifies files from jobs until the channel closes or ctx is done.
func (e *BatchEngine) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan batchJob, outcomes chan<- batchOutcome) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		outcomes <- batchOutcome{index: job.index, res: e.classify(ctx, job.path)}
	}
}

func (e *BatchEngine) classify(ctx context.Context, path string) ImageResult {
	res := ImageResult{Path: path}

	x, err := preprocess.FromFile(path)
	if err != nil {
		res.Error = err
		return res
	}

	results, err := e.classifier.Run(ctx, x)
	if err != nil {
		res.Error = fmt.Errorf("inference failed: %w", err)
		return res
	}
	res.Results = results
	res.RequestID = shared.GenerateID()

	if e.recorder != nil {
		recs := make([]*models.PredictionRecord, len(results))
		for i, r := range results {
			recs[i] = models.NewPredictionRecord(res.RequestID, r)
		}
		if err := e.recorder.CreateAll(recs); err != nil {
			e.log().Warn("failed to record predictions", "path", path, "error", err)
		}
	}
	return res
}

// writeOutputs writes the report of successful images and the manifest of all of them.
func (e *BatchEngine) writeOutputs(result *BatchResult, opts BatchOpts) error {
	manifest := &formatter.Manifest{
		CreatedAt: time.Now().UTC(),
		Format:    opts.Format,
		Total:     result.Total,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Images:    make([]formatter.ManifestEntry, 0, len(result.Results)),
	}

	var reports []formatter.Report
	for _, res := range result.Results {
		entry := formatter.ManifestEntry{Source: res.Path, RequestID: res.RequestID}
		if res.Error != nil {
			entry.Error = res.Error.Error()
		} else {
			entry.Guesses = make(map[string]int, len(res.Results))
			for _, r := range res.Results {
				entry.Guesses[r.Name] = r.Guess.Digit
			}
			reports = append(reports, formatter.Report{Source: res.Path, Results: res.Results})
		}
		manifest.Images = append(manifest.Images, entry)
	}

	if len(reports) > 0 {
		path := filepath.Join(opts.OutputDir, "predictions"+opts.Format.Ext())
		written, err := formatter.WriteExport(opts.Format, reports, path, true)
		if err != nil {
			return err
		}
		result.ReportPath = written
		manifest.Report = filepath.Base(written)
	}

	manifestPath := filepath.Join(opts.OutputDir, manifestName)
	if err := formatter.WriteManifest(manifest, manifestPath); err != nil {
		return err
	}
	result.ManifestPath = manifestPath
	return nil
}

func (e *BatchEngine) log() *log.Logger {
	if e.logger == nil {
		return log.New(io.Discard)
	}
	return e.logger
}
