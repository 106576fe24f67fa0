package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/digits/internal/formatter"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/nn"
	"github.com/desertthunder/digits/internal/shared"
	th "github.com/desertthunder/digits/internal/testing"
)

// mockClassifier guesses the digit encoded in the top-left pixel: brightness/25.
type mockClassifier struct {
	err error
}

func (m *mockClassifier) Run(ctx context.Context, x *nn.Tensor) ([]models.PredictionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}

	// undo normalization to recover the 0..255 pixel value
	v := (x.Data[0]*0.3081 + 0.1307) * 255
	digit := min(int(v+0.5)/25, 9)

	out := make([]models.Prediction, models.NumClasses)
	for d := range out {
		out[d] = models.Prediction{Digit: d}
	}
	out[digit].Confidence = 1
	return []models.PredictionResult{{Name: "CNN", Output: out, Guess: out[digit]}}, nil
}

type mockRecorder struct {
	mu   sync.Mutex
	recs []*models.PredictionRecord
	err  error
}

func (m *mockRecorder) CreateAll(recs []*models.PredictionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, recs...)
	return nil
}

func writeDigit(t *testing.T, path string, digit int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 28, 28))
	img.SetGray(0, 0, color.Gray{Y: uint8(digit * 25)})

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

// imageDir writes one PNG per digit plus a non-image file and a broken image.
func imageDir(t *testing.T, digits ...int) string {
	t.Helper()
	dir := t.TempDir()
	for _, d := range digits {
		writeDigit(t, filepath.Join(dir, "digit_"+string(rune('0'+d))+".png"), d)
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644)
	return dir
}

func TestDiscover(t *testing.T) {
	dir := imageDir(t, 3, 1)
	os.WriteFile(filepath.Join(dir, "UPPER.PNG"), []byte("x"), 0644)
	os.Mkdir(filepath.Join(dir, "nested.png"), 0755)

	t.Run("Directory", func(t *testing.T) {
		files, err := Discover([]string{dir})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := []string{
			filepath.Join(dir, "UPPER.PNG"),
			filepath.Join(dir, "digit_1.png"),
			filepath.Join(dir, "digit_3.png"),
		}
		if !slices.Equal(files, want) {
			t.Errorf("expected %v, got %v", want, files)
		}
	})

	t.Run("Explicit files are kept and de-duplicated", func(t *testing.T) {
		notes := filepath.Join(dir, "notes.txt")
		files, err := Discover([]string{notes, dir, filepath.Join(dir, "digit_1.png")})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(files) != 4 || !slices.Contains(files, notes) {
			t.Errorf("unexpected files %v", files)
		}
	})

	t.Run("Missing path", func(t *testing.T) {
		if _, err := Discover([]string{filepath.Join(dir, "missing")}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestBatchEngine(t *testing.T) {
	t.Run("Classifies every image", func(t *testing.T) {
		dir := imageDir(t, 0, 4, 9)
		out := filepath.Join(t.TempDir(), "out")
		rec := &mockRecorder{}
		engine := NewBatchEngine(&mockClassifier{}, rec, nil)

		prog := make(chan ProgressUpdate, 16)
		result, err := engine.Run(context.Background(), prog, []string{dir}, BatchOpts{
			Format:     formatter.FormatCSV,
			OutputDir:  out,
			NumWorkers: 2,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if result.Total != 3 || result.Succeeded != 3 || result.Failed != 0 {
			t.Errorf("unexpected counts %+v", result)
		}
		for i, want := range []int{0, 4, 9} {
			res := result.Results[i]
			if res.Error != nil || res.Results[0].Guess.Digit != want {
				t.Errorf("%s: expected digit %d, got %+v", res.Path, want, res)
			}
			if res.RequestID == "" {
				t.Errorf("%s: expected request ID", res.Path)
			}
		}

		if len(rec.recs) != 3 {
			t.Errorf("expected 3 recorded predictions, got %d", len(rec.recs))
		}

		if result.ReportPath != filepath.Join(out, "predictions.csv") {
			t.Errorf("unexpected report path %s", result.ReportPath)
		}
		if !strings.Contains(th.MustReadFile(t, result.ReportPath), "Source,Model,Guess") {
			t.Error("expected CSV report")
		}

		var manifest formatter.Manifest
		if err := json.Unmarshal([]byte(th.MustReadFile(t, result.ManifestPath)), &manifest); err != nil {
			t.Fatalf("invalid manifest: %v", err)
		}
		if manifest.Total != 3 || manifest.Report != "predictions.csv" || manifest.Images[2].Guesses["CNN"] != 9 {
			t.Errorf("unexpected manifest %+v", manifest)
		}

		close(prog)
		var phases []Phase
		for u := range prog {
			phases = append(phases, u.Phase)
		}
		if len(phases) != 5 || phases[0] != PhaseDiscover || phases[4] != WriteReport {
			t.Errorf("unexpected progress phases %v", phases)
		}
	})

	t.Run("Broken images are reported", func(t *testing.T) {
		dir := imageDir(t, 2)
		broken := filepath.Join(dir, "broken.png")
		os.WriteFile(broken, []byte("not a png"), 0644)

		engine := NewBatchEngine(&mockClassifier{}, nil, nil)
		result, err := engine.Run(context.Background(), nil, []string{dir}, BatchOpts{OutputDir: t.TempDir()})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Succeeded != 1 || result.Failed != 1 {
			t.Errorf("expected 1 success and 1 failure, got %+v", result)
		}
		if res := result.Results[0]; res.Path != broken || !errors.Is(res.Error, shared.ErrDecodeImage) {
			t.Errorf("expected decode failure for %s, got %+v", broken, res)
		}
	})

	t.Run("Classifier errors are per image", func(t *testing.T) {
		engine := NewBatchEngine(&mockClassifier{err: shared.ErrShape}, nil, nil)
		result, err := engine.Run(context.Background(), nil, []string{imageDir(t, 1, 2)}, BatchOpts{OutputDir: t.TempDir()})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Failed != 2 || result.ReportPath != "" {
			t.Errorf("expected all failed and no report, got %+v", result)
		}
		th.AssertFileExists(t, result.ManifestPath)
	})

	t.Run("Recorder failure is not fatal", func(t *testing.T) {
		engine := NewBatchEngine(&mockClassifier{}, &mockRecorder{err: errors.New("locked")}, nil)
		result, err := engine.Run(context.Background(), nil, []string{imageDir(t, 5)}, BatchOpts{OutputDir: t.TempDir()})
		if err != nil || result.Succeeded != 1 {
			t.Errorf("expected success, got %+v, %v", result, err)
		}
	})

	t.Run("No images", func(t *testing.T) {
		engine := NewBatchEngine(&mockClassifier{}, nil, nil)
		_, err := engine.Run(context.Background(), nil, []string{t.TempDir()}, BatchOpts{OutputDir: t.TempDir()})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("No classifier", func(t *testing.T) {
		engine := NewBatchEngine(nil, nil, nil)
		if _, err := engine.Run(context.Background(), nil, nil, BatchOpts{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		engine := NewBatchEngine(&mockClassifier{}, nil, nil)
		out := t.TempDir()
		_, err := engine.Run(ctx, nil, []string{imageDir(t, 1, 2, 3)}, BatchOpts{OutputDir: out})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(out, manifestName)); !os.IsNotExist(err) {
			t.Error("expected no manifest for a cancelled run")
		}
	})
}

func TestPhase(t *testing.T) {
	for p, want := range map[Phase]string{PhaseDiscover: "discover", Classify: "classify", WriteReport: "write_report", Phase(42): ""} {
		if p.String() != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), p.String(), want)
		}
	}
}
