package nn

import (
	"fmt"

	"github.com/desertthunder/digits/internal/shared"
)

// Linear is an affine transform y = x·Wᵀ + b with W shaped [out, in].
type Linear struct {
	Weight *Tensor
	Bias   *Tensor
}

// NewLinear validates parameter shapes and builds a [Linear] layer.
func NewLinear(weight, bias *Tensor) (*Linear, error) {
	if weight.Dims() != 2 {
		return nil, fmt.Errorf("%w: linear weight must be 2-D, got %v", shared.ErrShape, weight.Shape)
	}
	if bias.Dims() != 1 || bias.Shape[0] != weight.Shape[0] {
		return nil, fmt.Errorf("%w: linear bias %v does not match weight %v", shared.ErrShape, bias.Shape, weight.Shape)
	}
	return &Linear{Weight: weight, Bias: bias}, nil
}

// In returns the input feature count.
func (l *Linear) In() int { return l.Weight.Shape[1] }

// Out returns the output feature count.
func (l *Linear) Out() int { return l.Weight.Shape[0] }

// Forward maps x [N, in] to [N, out].
func (l *Linear) Forward(x *Tensor) (*Tensor, error) {
	if x.Dims() != 2 || x.Shape[1] != l.In() {
		return nil, fmt.Errorf("%w: linear expects [N %d], got %v", shared.ErrShape, l.In(), x.Shape)
	}

	n, in, out := x.Shape[0], l.In(), l.Out()
	y := New(n, out)
	for b := range n {
		row := x.Data[b*in : (b+1)*in]
		dst := y.Data[b*out : (b+1)*out]
		for o := range out {
			w := l.Weight.Data[o*in : (o+1)*in]
			var acc float32
			for i, v := range row {
				acc += w[i] * v
			}
			dst[o] = acc + l.Bias.Data[o]
		}
	}
	return y, nil
}

// Conv2D is a stride-1 2-D convolution with symmetric zero padding.
// Weight is shaped [out, in, k, k].
type Conv2D struct {
	Weight  *Tensor
	Bias    *Tensor
	Padding int
}

// NewConv2D validates parameter shapes and builds a [Conv2D] layer.
func NewConv2D(weight, bias *Tensor, padding int) (*Conv2D, error) {
	if weight.Dims() != 4 || weight.Shape[2] != weight.Shape[3] {
		return nil, fmt.Errorf("%w: conv weight must be [out in k k], got %v", shared.ErrShape, weight.Shape)
	}
	if bias.Dims() != 1 || bias.Shape[0] != weight.Shape[0] {
		return nil, fmt.Errorf("%w: conv bias %v does not match weight %v", shared.ErrShape, bias.Shape, weight.Shape)
	}
	return &Conv2D{Weight: weight, Bias: bias, Padding: padding}, nil
}

// Forward maps x [N, in, H, W] to [N, out, H+2p-k+1, W+2p-k+1].
func (c *Conv2D) Forward(x *Tensor) (*Tensor, error) {
	outC, inC, k := c.Weight.Shape[0], c.Weight.Shape[1], c.Weight.Shape[2]
	if x.Dims() != 4 || x.Shape[1] != inC {
		return nil, fmt.Errorf("%w: conv expects [N %d H W], got %v", shared.ErrShape, inC, x.Shape)
	}

	n, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	p := c.Padding
	outH, outW := h+2*p-k+1, w+2*p-k+1
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("%w: kernel %d too large for %dx%d input", shared.ErrShape, k, h, w)
	}

	y := New(n, outC, outH, outW)
	plane, outPlane := h*w, outH*outW
	for b := range n {
		for oc := range outC {
			dst := y.Data[(b*outC+oc)*outPlane : (b*outC+oc+1)*outPlane]
			bias := c.Bias.Data[oc]
			for i := range dst {
				dst[i] = bias
			}

			for ic := range inC {
				src := x.Data[(b*inC+ic)*plane : (b*inC+ic+1)*plane]
				kernel := c.Weight.Data[(oc*inC+ic)*k*k : (oc*inC+ic+1)*k*k]
				for ky := range k {
					for kx := range k {
						wv := kernel[ky*k+kx]
						if wv == 0 {
							continue
						}
						x0, x1 := max(0, p-kx), min(outW, w+p-kx)
						for oy := range outH {
							iy := oy + ky - p
							if iy < 0 || iy >= h {
								continue
							}
							base, row := iy*w+kx-p, oy*outW
							for ox := x0; ox < x1; ox++ {
								dst[row+ox] += wv * src[base+ox]
							}
						}
					}
				}
			}
		}
	}
	return y, nil
}

// MaxPool2D applies non-overlapping k×k max pooling to x [N, C, H, W].
// Trailing rows and columns that do not fill a window are dropped.
func MaxPool2D(x *Tensor, k int) (*Tensor, error) {
	if x.Dims() != 4 {
		return nil, fmt.Errorf("%w: max pool expects [N C H W], got %v", shared.ErrShape, x.Shape)
	}

	n, ch, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	outH, outW := h/k, w/k
	y := New(n, ch, outH, outW)
	for plane := range n * ch {
		src := x.Data[plane*h*w : (plane+1)*h*w]
		dst := y.Data[plane*outH*outW : (plane+1)*outH*outW]
		for oy := range outH {
			for ox := range outW {
				best := src[(oy*k)*w+ox*k]
				for dy := range k {
					for dx := range k {
						if v := src[(oy*k+dy)*w+ox*k+dx]; v > best {
							best = v
						}
					}
				}
				dst[oy*outW+ox] = best
			}
		}
	}
	return y, nil
}

// ReLU returns max(x, 0) element-wise as a new tensor.
func ReLU(x *Tensor) *Tensor {
	y := x.Clone()
	for i, v := range y.Data {
		if v < 0 {
			y.Data[i] = 0
		}
	}
	return y
}

// Flatten collapses every dimension after the first: [N, ...] → [N, prod(...)].
func Flatten(x *Tensor) (*Tensor, error) {
	if x.Dims() < 1 || x.Shape[0] == 0 {
		return nil, fmt.Errorf("%w: cannot flatten %v", shared.ErrShape, x.Shape)
	}
	return x.Reshape(x.Shape[0], x.Len()/x.Shape[0])
}
