package classifier

import (
	"fmt"

	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/nn"
	"github.com/desertthunder/digits/internal/shared"
)

const (
	imageSide   = 28
	imagePixels = imageSide * imageSide
)

// Model maps a batch of 28×28 images to [N, 10] logits.
//
// The interface is sealed: only the topologies in this package implement it.
type Model interface {
	Kind() Kind
	Forward(x *nn.Tensor) (*nn.Tensor, error)
	sealed()
}

var (
	_ Model = (*LR)(nil)
	_ Model = (*MLP)(nil)
	_ Model = (*CNN)(nil)
)

// LR is multinomial logistic regression: a single 784→10 affine layer.
type LR struct {
	fc *nn.Linear
}

func newLR(p *nn.Params) (*LR, error) {
	fc, err := linear(p, KindLR.prefix(), models.NumClasses, imagePixels)
	if err != nil {
		return nil, err
	}
	return &LR{fc: fc}, nil
}

func (m *LR) Kind() Kind { return KindLR }
func (m *LR) sealed()    {}

// Forward flattens x and applies the affine layer.
func (m *LR) Forward(x *nn.Tensor) (*nn.Tensor, error) {
	flat, err := flatInput(x)
	if err != nil {
		return nil, err
	}
	return m.fc.Forward(flat)
}

// MLP is a 784→512→256→10 perceptron with ReLU between affine layers.
type MLP struct {
	layers []*nn.Linear
}

func newMLP(p *nn.Params) (*MLP, error) {
	// state-dict indices skip the ReLU and Dropout modules between affine layers
	specs := []struct {
		name    string
		out, in int
	}{
		{KindMLP.prefix() + ".0", 512, imagePixels},
		{KindMLP.prefix() + ".3", 256, 512},
		{KindMLP.prefix() + ".6", models.NumClasses, 256},
	}

	m := &MLP{}
	for _, s := range specs {
		fc, err := linear(p, s.name, s.out, s.in)
		if err != nil {
			return nil, err
		}
		m.layers = append(m.layers, fc)
	}
	return m, nil
}

func (m *MLP) Kind() Kind { return KindMLP }
func (m *MLP) sealed()    {}

// Forward flattens x and runs the affine stack.
func (m *MLP) Forward(x *nn.Tensor) (*nn.Tensor, error) {
	h, err := flatInput(x)
	if err != nil {
		return nil, err
	}

	for i, fc := range m.layers {
		if h, err = fc.Forward(h); err != nil {
			return nil, err
		}
		if i < len(m.layers)-1 {
			h = nn.ReLU(h)
		}
	}
	return h, nil
}

// CNN is the convolutional classifier:
//
//	conv(1→32) relu conv(32→64) relu pool
//	conv(64→128) conv(128→128) pool
//	flatten fc(6272→512) fc(512→10)
//
// The third and fourth convolutions and the first affine layer have no activation.
type CNN struct {
	conv1, conv2, conv3, conv4 *nn.Conv2D
	fc1, fc2                   *nn.Linear
}

func newCNN(p *nn.Params) (*CNN, error) {
	var err error
	m := &CNN{}

	convs := []struct {
		dst     **nn.Conv2D
		name    string
		out, in int
	}{
		{&m.conv1, KindCNN.prefix() + ".0", 32, 1},
		{&m.conv2, KindCNN.prefix() + ".2", 64, 32},
		{&m.conv3, KindCNN.prefix() + ".6", 128, 64},
		{&m.conv4, KindCNN.prefix() + ".7", 128, 128},
	}
	for _, c := range convs {
		if *c.dst, err = conv(p, c.name, c.out, c.in, 3, 1); err != nil {
			return nil, err
		}
	}

	if m.fc1, err = linear(p, KindCNN.prefix()+".11", 512, 128*7*7); err != nil {
		return nil, err
	}
	if m.fc2, err = linear(p, KindCNN.prefix()+".13", models.NumClasses, 512); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CNN) Kind() Kind { return KindCNN }
func (m *CNN) sealed()    {}

// Forward runs the convolutional stack on x.
func (m *CNN) Forward(x *nn.Tensor) (*nn.Tensor, error) {
	h, err := imageInput(x)
	if err != nil {
		return nil, err
	}

	steps := []func(*nn.Tensor) (*nn.Tensor, error){
		m.conv1.Forward, relu,
		m.conv2.Forward, relu,
		pool,
		m.conv3.Forward,
		m.conv4.Forward,
		pool,
		nn.Flatten,
		m.fc1.Forward,
		m.fc2.Forward,
	}
	for _, step := range steps {
		if h, err = step(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func relu(x *nn.Tensor) (*nn.Tensor, error) { return nn.ReLU(x), nil }
func pool(x *nn.Tensor) (*nn.Tensor, error) { return nn.MaxPool2D(x, 2) }

// flatInput accepts [N 28 28] or [N 1 28 28] and returns an [N 784] view.
func flatInput(x *nn.Tensor) (*nn.Tensor, error) {
	switch {
	case x.Dims() == 3 && x.Shape[1] == imageSide && x.Shape[2] == imageSide:
	case x.Dims() == 4 && x.Shape[1] == 1 && x.Shape[2] == imageSide && x.Shape[3] == imageSide:
	default:
		return nil, fmt.Errorf("%w: expected [N 28 28] or [N 1 28 28], got %v", shared.ErrShape, x.Shape)
	}
	return x.Reshape(x.Shape[0], imagePixels)
}

// imageInput accepts [N 28 28] or [N 1 28 28] and returns an [N 1 28 28] view.
func imageInput(x *nn.Tensor) (*nn.Tensor, error) {
	flat, err := flatInput(x)
	if err != nil {
		return nil, err
	}
	return flat.Reshape(x.Shape[0], 1, imageSide, imageSide)
}

func linear(p *nn.Params, name string, out, in int) (*nn.Linear, error) {
	w, err := p.Tensor(name+".weight", out, in)
	if err != nil {
		return nil, err
	}
	b, err := p.Tensor(name+".bias", out)
	if err != nil {
		return nil, err
	}
	return nn.NewLinear(w, b)
}

func conv(p *nn.Params, name string, out, in, k, padding int) (*nn.Conv2D, error) {
	w, err := p.Tensor(name+".weight", out, in, k, k)
	if err != nil {
		return nil, err
	}
	b, err := p.Tensor(name+".bias", out)
	if err != nil {
		return nil, err
	}
	return nn.NewConv2D(w, b, padding)
}
