package nn

import (
	"errors"
	"math"
	"testing"

	"github.com/desertthunder/digits/internal/shared"
)

func mustTensor(t *testing.T, data []float32, shape ...int) *Tensor {
	t.Helper()
	x, err := FromData(data, shape...)
	if err != nil {
		t.Fatalf("failed to build tensor: %v", err)
	}
	return x
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestTensor(t *testing.T) {
	t.Run("FromData rejects length mismatch", func(t *testing.T) {
		_, err := FromData([]float32{1, 2, 3}, 2, 2)
		if !errors.Is(err, shared.ErrShape) {
			t.Errorf("expected ErrShape, got %v", err)
		}
	})

	t.Run("Reshape shares data", func(t *testing.T) {
		x := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
		y, err := x.Reshape(3, 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		y.Data[0] = 42
		if x.Data[0] != 42 {
			t.Error("expected reshape to be a view")
		}
		if got := y.At(2, 1); got != 6 {
			t.Errorf("expected At(2,1)=6, got %v", got)
		}
	})

	t.Run("Clone copies data", func(t *testing.T) {
		x := mustTensor(t, []float32{1, 2}, 2)
		y := x.Clone()
		y.Data[0] = 9
		if x.Data[0] != 1 {
			t.Error("expected clone to be independent")
		}
	})
}

func TestLinear(t *testing.T) {
	w := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := mustTensor(t, []float32{0.5, -1}, 2)
	l, err := NewLinear(w, b)
	if err != nil {
		t.Fatalf("failed to build linear: %v", err)
	}

	t.Run("Forward", func(t *testing.T) {
		x := mustTensor(t, []float32{1, 0, -1, 2, 2, 2}, 2, 3)
		y, err := l.Forward(x)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		want := []float32{1 - 3 + 0.5, 4 - 6 - 1, 12 + 0.5, 30 - 1}
		for i, v := range want {
			if !near(y.Data[i], v) {
				t.Errorf("y[%d] = %v, want %v", i, y.Data[i], v)
			}
		}
	})

	t.Run("Rejects wrong width", func(t *testing.T) {
		_, err := l.Forward(New(1, 4))
		if !errors.Is(err, shared.ErrShape) {
			t.Errorf("expected ErrShape, got %v", err)
		}
	})

	t.Run("Rejects mismatched bias", func(t *testing.T) {
		_, err := NewLinear(w, New(3))
		if !errors.Is(err, shared.ErrShape) {
			t.Errorf("expected ErrShape, got %v", err)
		}
	})
}

func TestConv2D(t *testing.T) {
	t.Run("identity kernel with padding keeps input", func(t *testing.T) {
		w := New(1, 1, 3, 3)
		w.Data[4] = 1
		c, err := NewConv2D(w, New(1), 1)
		if err != nil {
			t.Fatalf("failed to build conv: %v", err)
		}

		x := mustTensor(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 1, 3, 3)
		y, err := c.Forward(x)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for i := range x.Data {
			if y.Data[i] != x.Data[i] {
				t.Errorf("y[%d] = %v, want %v", i, y.Data[i], x.Data[i])
			}
		}
	})

	t.Run("box kernel sums neighbourhood with zero padding", func(t *testing.T) {
		w := mustTensor(t, []float32{1, 1, 1, 1, 1, 1, 1, 1, 1}, 1, 1, 3, 3)
		c, _ := NewConv2D(w, mustTensor(t, []float32{0.5}, 1), 1)

		x := mustTensor(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 1, 3, 3)
		y, err := c.Forward(x)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		want := []float32{12, 21, 16, 27, 45, 33, 24, 39, 28}
		for i, v := range want {
			if !near(y.Data[i], v+0.5) {
				t.Errorf("y[%d] = %v, want %v", i, y.Data[i], v+0.5)
			}
		}
	})

	t.Run("sums over input channels", func(t *testing.T) {
		w := New(2, 2, 1, 1)
		w.Data = []float32{1, 1, 1, -1}
		c, _ := NewConv2D(w, New(2), 0)

		x := mustTensor(t, []float32{1, 2, 10, 20}, 1, 2, 1, 2)
		y, err := c.Forward(x)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !SameShape(y.Shape, []int{1, 2, 1, 2}) {
			t.Fatalf("unexpected shape %v", y.Shape)
		}
		want := []float32{11, 22, -9, -18}
		for i, v := range want {
			if y.Data[i] != v {
				t.Errorf("y[%d] = %v, want %v", i, y.Data[i], v)
			}
		}
	})

	t.Run("rejects channel mismatch", func(t *testing.T) {
		c, _ := NewConv2D(New(1, 2, 3, 3), New(1), 1)
		_, err := c.Forward(New(1, 1, 4, 4))
		if !errors.Is(err, shared.ErrShape) {
			t.Errorf("expected ErrShape, got %v", err)
		}
	})
}

func TestMaxPool2D(t *testing.T) {
	x := mustTensor(t, []float32{
		1, 5, 2, 0, 9,
		3, 4, -1, 8, 9,
		0, 0, 7, 6, 9,
		1, 2, 3, 4, 9,
		9, 9, 9, 9, 9,
	}, 1, 1, 5, 5)

	y, err := MaxPool2D(x, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !SameShape(y.Shape, []int{1, 1, 2, 2}) {
		t.Fatalf("expected floor-sized output, got %v", y.Shape)
	}
	want := []float32{5, 8, 2, 7}
	for i, v := range want {
		if y.Data[i] != v {
			t.Errorf("y[%d] = %v, want %v", i, y.Data[i], v)
		}
	}
}

func TestReLU(t *testing.T) {
	x := mustTensor(t, []float32{-1, 0, 2}, 3)
	y := ReLU(x)
	if y.Data[0] != 0 || y.Data[1] != 0 || y.Data[2] != 2 {
		t.Errorf("unexpected relu output %v", y.Data)
	}
	if x.Data[0] != -1 {
		t.Error("expected input to be unchanged")
	}
}

func TestFlatten(t *testing.T) {
	y, err := Flatten(New(2, 3, 4, 5))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !SameShape(y.Shape, []int{2, 60}) {
		t.Errorf("expected [2 60], got %v", y.Shape)
	}
}

func TestSoftmax(t *testing.T) {
	tc := []struct {
		name   string
		logits []float32
	}{
		{name: "small values", logits: []float32{0, 1, 2, 3}},
		{name: "uniform", logits: []float32{5, 5, 5, 5}},
		{name: "huge magnitudes", logits: []float32{1e30, -1e30, 3e38, -3e38}},
		{name: "non-finite", logits: []float32{float32(math.Inf(1)), float32(math.NaN()), 0}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			probs := Softmax(tt.logits)
			var sum float64
			for i, p := range probs {
				if p < 0 || math.IsNaN(float64(p)) {
					t.Errorf("probs[%d] = %v is not a probability", i, p)
				}
				sum += float64(p)
			}
			if math.Abs(sum-1) > 1e-5 {
				t.Errorf("expected probabilities to sum to 1, got %v", sum)
			}
		})
	}

	t.Run("positive infinity wins", func(t *testing.T) {
		inf := float32(math.Inf(1))
		probs := Softmax([]float32{1, inf, 0, 0, 0, 0, 0, 0, 0, 0})
		if got := Argmax(probs); got != 1 {
			t.Errorf("expected digit 1, got %d from %v", got, probs)
		}
		if !near(probs[1], 1) {
			t.Errorf("expected all mass on index 1, got %v", probs[1])
		}
	})

	t.Run("NaN and negative infinity lose", func(t *testing.T) {
		probs := Softmax([]float32{float32(math.NaN()), 2, float32(math.Inf(-1))})
		if probs[0] != 0 || probs[2] != 0 || !near(probs[1], 1) {
			t.Errorf("unexpected probabilities %v", probs)
		}
	})

	t.Run("matches closed form", func(t *testing.T) {
		probs := Softmax([]float32{0, math.Ln2})
		if !near(probs[0], 1.0/3) || !near(probs[1], 2.0/3) {
			t.Errorf("unexpected probabilities %v", probs)
		}
	})
}

func TestArgmax(t *testing.T) {
	tc := []struct {
		name string
		in   []float32
		want int
	}{
		{name: "single max", in: []float32{0.1, 0.7, 0.2}, want: 1},
		{name: "tie picks first", in: []float32{0.4, 0.1, 0.4, 0.1}, want: 0},
		{name: "all equal", in: []float32{0.1, 0.1, 0.1}, want: 0},
		{name: "empty", in: nil, want: -1},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Argmax(tt.in); got != tt.want {
				t.Errorf("Argmax(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
