// Package nn implements the float32 tensor primitives needed for forward inference:
// affine layers, 2-D convolution, max pooling, ReLU, softmax and argmax,
// plus a reader for safetensors parameter files.
//
// Tensors are dense and row-major. Layers never modify their inputs or parameters,
// so a single set of loaded parameters can be shared by concurrent forward passes.
package nn

import (
	"fmt"
	"slices"

	"github.com/desertthunder/digits/internal/shared"
)

// Tensor is a dense row-major float32 array.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zeroed tensor with the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{Shape: slices.Clone(shape), Data: make([]float32, numel(shape))}
}

// FromData wraps data in a tensor, checking that its length matches shape.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	if n := numel(shape); n != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v (want %d)", shared.ErrShape, len(data), shape, n)
	}
	return &Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

// Dims returns the number of dimensions.
func (t *Tensor) Dims() int { return len(t.Shape) }

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Reshape returns a view of t with a new shape. The backing data is shared.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	return FromData(t.Data, shape...)
}

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// At returns the element at the given index.
func (t *Tensor) At(idx ...int) float32 {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("nn: index %v for shape %v", idx, t.Shape))
	}
	off := 0
	for i, v := range idx {
		off = off*t.Shape[i] + v
	}
	return t.Data[off]
}

// Row returns the i-th slice along the leading dimension.
func (t *Tensor) Row(i int) []float32 {
	stride := t.Len() / t.Shape[0]
	return t.Data[i*stride : (i+1)*stride]
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}

// SameShape reports whether a and b have identical dimensions.
func SameShape(a, b []int) bool {
	return slices.Equal(a, b)
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
