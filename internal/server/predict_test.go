package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/digits/internal/classifier"
	"github.com/desertthunder/digits/internal/inference"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/repositories"
	"github.com/desertthunder/digits/internal/shared"
	tu "github.com/desertthunder/digits/internal/testing"
)

var testLogits = map[string][]float32{
	"CNN": {0, 0, 0, 0, 0, 0, 0, 5, 0, 0},
	"MLP": {0, 0, 0, 0, 0, 0, 0, 0, 3, 0},
	"LR":  {0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
}

func newTestRunner(t *testing.T) *inference.Runner {
	t.Helper()
	paths := tu.WriteConstantModels(t, t.TempDir(), testLogits)
	registry, err := classifier.Load(classifier.Paths{
		classifier.KindCNN: paths["CNN"],
		classifier.KindMLP: paths["MLP"],
		classifier.KindLR:  paths["LR"],
	}, nil)
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	return inference.NewRunner(registry)
}

func newTestDB(t *testing.T) *repositories.PredictionRepository {
	t.Helper()
	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewPredictionRepository(db)
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.Set(w/2, h/2, color.Black)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func postPredict(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) CreateAll([]*models.PredictionRecord) error {
	f.calls++
	return errors.New("disk full")
}

func TestPredictHandler(t *testing.T) {
	runner := newTestRunner(t)
	cfg := shared.DefaultConfig().Server
	cfg.RateLimit = 0

	t.Run("Success", func(t *testing.T) {
		repo := newTestDB(t)
		r := NewRouter(cfg, Deps{Runner: runner, Recorder: repo, Logger: testLogger()})

		body, _ := json.Marshal(map[string]string{"image": pngBase64(t, 64, 48)})
		rec := postPredict(r, string(body))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}

		var results []models.PredictionResult
		if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}

		wantNames := []string{"CNN", "MLP", "LR"}
		wantGuess := []int{7, 8, 0}
		for i, res := range results {
			if res.Name != wantNames[i] || res.Guess.Digit != wantGuess[i] {
				t.Errorf("result %d: expected %s/%d, got %s/%d", i, wantNames[i], wantGuess[i], res.Name, res.Guess.Digit)
			}
			var sum float64
			for d, p := range res.Output {
				if p.Digit != d {
					t.Errorf("%s: output[%d] has digit %d", res.Name, d, p.Digit)
				}
				sum += p.Confidence
			}
			if math.Abs(sum-1) > 1e-5 {
				t.Errorf("%s: confidences sum to %v", res.Name, sum)
			}
		}

		id := rec.Header().Get(RequestIDHeader)
		recs, err := repo.List(map[string]any{"request_id": id})
		if err != nil {
			t.Fatalf("failed to list records: %v", err)
		}
		if len(recs) != 3 {
			t.Errorf("expected 3 audit records for %s, got %d", id, len(recs))
		}
	})

	t.Run("Data URL prefix", func(t *testing.T) {
		r := NewRouter(cfg, Deps{Runner: runner, Logger: testLogger()})
		body, _ := json.Marshal(map[string]string{"image": "data:image/png;base64," + pngBase64(t, 28, 28)})
		if rec := postPredict(r, string(body)); rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("Recorder failure does not fail the request", func(t *testing.T) {
		fr := &failingRecorder{}
		r := NewRouter(cfg, Deps{Runner: runner, Recorder: fr, Logger: testLogger()})
		body, _ := json.Marshal(map[string]string{"image": pngBase64(t, 28, 28)})
		if rec := postPredict(r, string(body)); rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		if fr.calls != 1 {
			t.Errorf("expected one recorder call, got %d", fr.calls)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		r := NewRouter(cfg, Deps{Runner: runner, Logger: testLogger()})
		tests := []struct {
			name   string
			body   string
			status int
			msg    string
		}{
			{"missing image", `{}`, http.StatusBadRequest, "Image data not provided."},
			{"empty image", `{"image": ""}`, http.StatusBadRequest, "Image data not provided."},
			{"invalid JSON", `{"image":`, http.StatusBadRequest, "Image data not provided."},
			{"bad base64", `{"image": "%%%"}`, http.StatusInternalServerError, shared.ErrDecodeImage.Error()},
			{"not an image", `{"image": "aGVsbG8="}`, http.StatusInternalServerError, shared.ErrDecodeImage.Error()},
			{"null image", `{"image": null}`, http.StatusBadRequest, "Image data not provided."},
			{"false image", `{"image": false}`, http.StatusBadRequest, "Image data not provided."},
			{"zero image", `{"image": 0}`, http.StatusBadRequest, "Image data not provided."},
			{"empty list image", `{"image": []}`, http.StatusBadRequest, "Image data not provided."},
			{"number image", `{"image": 123}`, http.StatusInternalServerError, shared.ErrDecodeImage.Error()},
			{"object image", `{"image": {"data": "aGVsbG8="}}`, http.StatusInternalServerError, shared.ErrDecodeImage.Error()},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := postPredict(r, tt.body)
				if rec.Code != tt.status {
					t.Fatalf("expected %d, got %d", tt.status, rec.Code)
				}
				if msg := decodeError(t, rec); !strings.HasPrefix(msg, tt.msg) {
					t.Errorf("expected error starting with %q, got %q", tt.msg, msg)
				}
			})
		}
	})

	t.Run("Body too large", func(t *testing.T) {
		small := cfg
		small.MaxBodyBytes = 16
		r := NewRouter(small, Deps{Runner: runner, Logger: testLogger()})
		rec := postPredict(r, `{"image": "`+strings.Repeat("A", 64)+`"}`)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected 413, got %d", rec.Code)
		}
	})

	t.Run("GET is not allowed", func(t *testing.T) {
		r := NewRouter(cfg, Deps{Runner: runner, Logger: testLogger()})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("Rate limited", func(t *testing.T) {
		limited := cfg
		limited.RateLimit, limited.Burst = 0.001, 1
		r := NewRouter(limited, Deps{Runner: runner, Logger: testLogger()})

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("expected 429, got %d", rec.Code)
		}
	})
}

func TestStatusHandler(t *testing.T) {
	cfg := shared.DefaultConfig().Server
	cfg.RateLimit = 0
	r := NewRouter(cfg, Deps{Runner: newTestRunner(t), Logger: testLogger()})

	tests := []struct {
		path string
		want string
	}{
		{"/", `{"message":"Server is running..."}`},
		{"/testing", `{"success":true}`},
		{"/health", `{"models":["CNN","MLP","LR"],"status":"healthy"}`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("Unknown route", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("Spotify disabled without credentials", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})
}
