package nn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/desertthunder/digits/internal/shared"
)

func encodeRaw(t *testing.T, header string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(header))); err != nil {
		t.Fatalf("failed to write header length: %v", err)
	}
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestParams(t *testing.T) {
	tensors := map[string]*Tensor{
		"layer.weight": mustTensor(t, []float32{1, -2, 3.5, 4, 5, 6}, 2, 3),
		"layer.bias":   mustTensor(t, []float32{0.25, -0.25}, 2),
	}

	t.Run("round trip through a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "layer.safetensors")
		if err := SaveParams(path, tensors, map[string]string{"format": "pt"}); err != nil {
			t.Fatalf("failed to save params: %v", err)
		}

		p, err := LoadParams(path)
		if err != nil {
			t.Fatalf("failed to load params: %v", err)
		}

		w, err := p.Tensor("layer.weight", 2, 3)
		if err != nil {
			t.Fatalf("expected weight, got %v", err)
		}
		if w.At(0, 2) != 3.5 || w.At(1, 0) != 4 {
			t.Errorf("unexpected weight values %v", w.Data)
		}
		if p.Metadata()["format"] != "pt" {
			t.Errorf("expected metadata to survive, got %v", p.Metadata())
		}
		if unused := p.Unused(); len(unused) != 1 || unused[0] != "layer.bias" {
			t.Errorf("expected layer.bias to be unused, got %v", unused)
		}
	})

	t.Run("Tensor", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteParams(&buf, tensors, nil); err != nil {
			t.Fatalf("failed to write params: %v", err)
		}
		p, err := ReadParams(&buf)
		if err != nil {
			t.Fatalf("failed to read params: %v", err)
		}

		t.Run("missing name", func(t *testing.T) {
			_, err := p.Tensor("other.weight", 2, 3)
			if !errors.Is(err, shared.ErrInvalidParams) {
				t.Errorf("expected ErrInvalidParams, got %v", err)
			}
		})

		t.Run("shape mismatch", func(t *testing.T) {
			_, err := p.Tensor("layer.weight", 3, 2)
			if !errors.Is(err, shared.ErrShape) {
				t.Errorf("expected ErrShape, got %v", err)
			}
		})

		t.Run("names are sorted", func(t *testing.T) {
			names := p.Names()
			if len(names) != 2 || names[0] != "layer.bias" || names[1] != "layer.weight" {
				t.Errorf("unexpected names %v", names)
			}
		})
	})

	t.Run("ReadParams rejects", func(t *testing.T) {
		tc := []struct {
			name  string
			input []byte
		}{
			{name: "empty input", input: nil},
			{name: "zero header length", input: encodeRaw(t, "", nil)},
			{name: "truncated header", input: encodeRaw(t, `{"a":`, nil)[:10]},
			{name: "invalid json", input: encodeRaw(t, `{"a":`, nil)},
			{name: "unsupported dtype", input: encodeRaw(t, `{"a":{"dtype":"F16","shape":[1],"data_offsets":[0,2]}}`, make([]byte, 2))},
			{name: "offsets past data", input: encodeRaw(t, `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`, make([]byte, 4))},
			{name: "span does not match shape", input: encodeRaw(t, `{"a":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`, make([]byte, 8))},
			{name: "overflowing shape", input: encodeRaw(t, `{"a":{"dtype":"F32","shape":[4611686018427387904],"data_offsets":[0,0]}}`, nil)},
			{name: "overflowing product", input: encodeRaw(t, `{"a":{"dtype":"F32","shape":[4294967296,4294967296],"data_offsets":[0,0]}}`, make([]byte, 8))},
			{name: "reversed offsets", input: encodeRaw(t, `{"a":{"dtype":"F32","shape":[0],"data_offsets":[4,0]}}`, make([]byte, 8))},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				_, err := ReadParams(bytes.NewReader(tt.input))
				if !errors.Is(err, shared.ErrInvalidParams) {
					t.Errorf("expected ErrInvalidParams, got %v", err)
				}
			})
		}
	})

	t.Run("LoadParams missing file", func(t *testing.T) {
		if _, err := LoadParams(filepath.Join(t.TempDir(), "nope.safetensors")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
