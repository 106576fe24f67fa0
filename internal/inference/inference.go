// Package inference runs a preprocessed tensor through every registered classifier
// and packages the per-model probability distributions.
package inference

import (
	"context"
	"fmt"

	"github.com/desertthunder/digits/internal/classifier"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/nn"
	"github.com/desertthunder/digits/internal/shared"
)

// Runner evaluates every model of a registry. It holds no mutable state and
// may be shared between goroutines.
type Runner struct {
	registry *classifier.Registry
}

// NewRunner creates a Runner over registry.
func NewRunner(registry *classifier.Registry) *Runner {
	return &Runner{registry: registry}
}

// Models returns the display names of the models the runner evaluates, in result order.
func (r *Runner) Models() []string {
	return r.registry.Names()
}

// Run classifies a single image tensor shaped [1 28 28] or [1 1 28 28].
// Results follow registry order: CNN, MLP, LR.
func (r *Runner) Run(ctx context.Context, x *nn.Tensor) ([]models.PredictionResult, error) {
	if x.Dims() == 0 || x.Shape[0] != 1 {
		return nil, fmt.Errorf("%w: expected a batch of one image, got %v", shared.ErrShape, x.Shape)
	}

	batch, err := r.RunBatch(ctx, x)
	if err != nil {
		return nil, err
	}
	return batch[0], nil
}

// RunBatch classifies every image of x and returns one result list per image.
func (r *Runner) RunBatch(ctx context.Context, x *nn.Tensor) ([][]models.PredictionResult, error) {
	entries := r.registry.Entries()
	if x.Dims() == 0 {
		return nil, fmt.Errorf("%w: empty tensor shape", shared.ErrShape)
	}

	n := x.Shape[0]
	out := make([][]models.PredictionResult, n)
	for i := range out {
		out[i] = make([]models.PredictionResult, 0, len(entries))
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logits, err := e.Model.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("%s forward pass failed: %w", e.Name, err)
		}
		if logits.Dims() != 2 || logits.Shape[0] != n || logits.Shape[1] != models.NumClasses {
			return nil, fmt.Errorf("%w: %s produced %v logits", shared.ErrShape, e.Name, logits.Shape)
		}

		for i := range n {
			out[i] = append(out[i], Result(e.Name, logits.Row(i)))
		}
	}
	return out, nil
}

// Result converts one row of logits into a [models.PredictionResult].
func Result(name string, logits []float32) models.PredictionResult {
	probs := nn.Softmax(logits)

	output := make([]models.Prediction, len(probs))
	for digit, p := range probs {
		output[digit] = models.Prediction{Digit: digit, Confidence: float64(p)}
	}

	res := models.PredictionResult{Name: name, Output: output}
	if guess := nn.Argmax(probs); guess >= 0 {
		res.Guess = output[guess]
	}
	return res
}
