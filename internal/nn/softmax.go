package nn

import "math"

// Softmax maps logits to a probability distribution.
//
// The maximum logit is subtracted before exponentiating so large-magnitude
// inputs cannot overflow, and the normalizer is accumulated in float64.
// +Inf is clamped to the largest finite float32; NaN and -Inf to the most negative.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}

	xs := make([]float64, len(logits))
	hi := math.Inf(-1)
	for i, v := range logits {
		x := float64(v)
		switch {
		case math.IsInf(x, 1):
			x = math.MaxFloat32
		case math.IsNaN(x) || math.IsInf(x, -1):
			x = -math.MaxFloat32
		}
		xs[i] = x
		hi = max(hi, x)
	}

	var sum float64
	for i, x := range xs {
		xs[i] = math.Exp(x - hi)
		sum += xs[i]
	}

	probs := make([]float32, len(xs))
	for i, e := range xs {
		probs[i] = float32(e / sum)
	}
	return probs
}

// Argmax returns the index of the largest value. Ties resolve to the lowest index; an empty slice yields -1.
func Argmax(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
