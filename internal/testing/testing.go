// package testing contains shared testing utilities
package testing

import (
	"errors"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/digits/internal/nn"
)

// ParamShapes lists the tensor shapes of each topology keyed by display name.
var ParamShapes = map[string]map[string][]int{
	"CNN": {
		"cnn_model.0.weight":  {32, 1, 3, 3},
		"cnn_model.0.bias":    {32},
		"cnn_model.2.weight":  {64, 32, 3, 3},
		"cnn_model.2.bias":    {64},
		"cnn_model.6.weight":  {128, 64, 3, 3},
		"cnn_model.6.bias":    {128},
		"cnn_model.7.weight":  {128, 128, 3, 3},
		"cnn_model.7.bias":    {128},
		"cnn_model.11.weight": {512, 6272},
		"cnn_model.11.bias":   {512},
		"cnn_model.13.weight": {10, 512},
		"cnn_model.13.bias":   {10},
	},
	"MLP": {
		"mlp_model.0.weight": {512, 784},
		"mlp_model.0.bias":   {512},
		"mlp_model.3.weight": {256, 512},
		"mlp_model.3.bias":   {256},
		"mlp_model.6.weight": {10, 256},
		"mlp_model.6.bias":   {10},
	},
	"LR": {
		"lr_model.weight": {10, 784},
		"lr_model.bias":   {10},
	},
}

// outputBias is the bias of each topology's final affine layer.
var outputBias = map[string]string{
	"CNN": "cnn_model.13.bias",
	"MLP": "mlp_model.6.bias",
	"LR":  "lr_model.bias",
}

// ZeroParams returns every tensor of the named topology filled with zeros.
func ZeroParams(name string) map[string]*nn.Tensor {
	tensors := make(map[string]*nn.Tensor, len(ParamShapes[name]))
	for key, shape := range ParamShapes[name] {
		tensors[key] = nn.New(shape...)
	}
	return tensors
}

// ConstantParams returns parameters whose network emits logits for every input.
func ConstantParams(name string, logits []float32) map[string]*nn.Tensor {
	tensors := ZeroParams(name)
	copy(tensors[outputBias[name]].Data, logits)
	return tensors
}

// SeededParams returns non-zero parameters for the named topology.
//
// Each tensor is filled from a linear congruential stream seeded with the FNV-1a hash of its
// name. Values are uniform in [-scale/2, scale/2) and exactly representable, with scale the
// power of two nearest sqrt(12/fan_in) for weights and 1/8 for biases.
func SeededParams(name string) map[string]*nn.Tensor {
	tensors := ZeroParams(name)
	for key, t := range tensors {
		scale := float32(0.125)
		if len(t.Shape) > 1 {
			fanIn := t.Len() / t.Shape[0]
			scale = float32(math.Exp2(math.Round(math.Log2(math.Sqrt(12 / float64(fanIn))))))
		}

		h := fnv.New32a()
		h.Write([]byte(key))
		state := h.Sum32()
		for i := range t.Data {
			state = state*1664525 + 1013904223
			t.Data[i] = (float32(state>>8)/(1<<24) - 0.5) * scale
		}
	}
	return tensors
}

// WriteSeededModels writes [SeededParams] for every topology under dir and returns the paths keyed by name.
func WriteSeededModels(t *testing.T, dir string) map[string]string {
	t.Helper()
	paths := make(map[string]string, len(ParamShapes))
	for name := range ParamShapes {
		path := filepath.Join(dir, strings.ToLower(name)+".safetensors")
		MustWriteParams(t, path, SeededParams(name))
		paths[name] = path
	}
	return paths
}

// MustWriteParams writes tensors to path in safetensors layout.
func MustWriteParams(t *testing.T, path string, tensors map[string]*nn.Tensor) {
	t.Helper()
	if err := nn.SaveParams(path, tensors, map[string]string{"format": "pt"}); err != nil {
		t.Fatalf("Failed to write parameters %s: %v", path, err)
	}
}

// WriteConstantModels writes one parameter file per topology under dir using the
// default file names, each emitting the given logits. It returns the written paths keyed by name.
func WriteConstantModels(t *testing.T, dir string, logits map[string][]float32) map[string]string {
	t.Helper()
	paths := make(map[string]string, len(ParamShapes))
	for name := range ParamShapes {
		path := filepath.Join(dir, strings.ToLower(name)+".safetensors")
		MustWriteParams(t, path, ConstantParams(name, logits[name]))
		paths[name] = path
	}
	return paths
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
