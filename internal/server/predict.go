package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/digits/internal/inference"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/nn"
	"github.com/desertthunder/digits/internal/preprocess"
	"github.com/desertthunder/digits/internal/shared"
)

// PredictionRecorder persists the top pick of each model for a request.
type PredictionRecorder interface {
	CreateAll(recs []*models.PredictionRecord) error
}

type predictRequest struct {
	Image any `json:"image"`
}

// image returns the posted base64 payload. ok is false when the field is absent or empty
// (null, false, 0, "", [] or {}); any other non-string value is a decode error.
func (p predictRequest) image() (s string, ok bool, err error) {
	switch v := p.Image.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, v != "", nil
	case bool:
		if !v {
			return "", false, nil
		}
	case float64:
		if v == 0 {
			return "", false, nil
		}
	case []any:
		if len(v) == 0 {
			return "", false, nil
		}
	case map[string]any:
		if len(v) == 0 {
			return "", false, nil
		}
	}
	return "", true, fmt.Errorf("%w: image must be a base64 string, got %T", shared.ErrDecodeImage, p.Image)
}

// PredictHandler serves POST /predict: base64 image in, one result per model out.
type PredictHandler struct {
	runner   *inference.Runner
	recorder PredictionRecorder
	logger   *log.Logger
}

// NewPredictHandler creates a [PredictHandler]. recorder may be nil to skip persistence.
func NewPredictHandler(runner *inference.Runner, recorder PredictionRecorder, logger *log.Logger) *PredictHandler {
	return &PredictHandler{runner: runner, recorder: recorder, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *PredictHandler) Routes() []string {
	return []string{"/predict"}
}

// ServeHTTP decodes, preprocesses and classifies the posted image.
func (h *PredictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, shared.ErrImageNotProvided.Error())
		return
	}
	image, ok, err := req.image()
	if !ok {
		writeError(w, http.StatusBadRequest, shared.ErrImageNotProvided.Error())
		return
	}

	var x *nn.Tensor
	if err == nil {
		x, err = preprocess.FromBase64(image)
	}
	if err != nil {
		h.logger.Warn("failed to decode image", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results, err := h.runner.Run(r.Context(), x)
	if err != nil {
		h.logger.Error("inference failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.record(RequestID(r.Context()), results)
	writeJSON(w, http.StatusOK, results)
}

// record stores each model's guess. Failures are logged and never reach the client.
func (h *PredictHandler) record(requestID string, results []models.PredictionResult) {
	if h.recorder == nil {
		return
	}
	if requestID == "" {
		requestID = shared.GenerateID()
	}

	recs := make([]*models.PredictionRecord, len(results))
	for i, res := range results {
		recs[i] = models.NewPredictionRecord(requestID, res)
	}
	if err := h.recorder.CreateAll(recs); err != nil {
		h.logger.Warn("failed to record predictions", "error", err, "request_id", requestID)
	}
}
