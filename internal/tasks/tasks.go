// package tasks implements long-running classification jobs over many images.
//
// The core abstraction is BatchEngine, which runs a worker pool over image files.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/nn"
)

// Classifier runs one preprocessed image through every model.
// Implemented by [inference.Runner].
type Classifier interface {
	Run(ctx context.Context, x *nn.Tensor) ([]models.PredictionResult, error)
}

// Recorder persists the top picks of a classified image.
// Implemented by repositories.PredictionRepository.
type Recorder interface {
	CreateAll(recs []*models.PredictionRecord) error
}

// BatchEngine classifies image files concurrently.
type BatchEngine struct {
	classifier Classifier
	recorder   Recorder
	logger     *log.Logger
}

// NewBatchEngine creates a BatchEngine. recorder may be nil to skip persistence.
func NewBatchEngine(classifier Classifier, recorder Recorder, logger *log.Logger) *BatchEngine {
	return &BatchEngine{classifier: classifier, recorder: recorder, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *BatchEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
