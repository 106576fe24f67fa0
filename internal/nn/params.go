package nn

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/desertthunder/digits/internal/shared"
)

const (
	metadataKey    = "__metadata__"
	maxHeaderBytes = 100 << 20
	dtypeF32       = "F32"
)

// tensorInfo is one entry of a safetensors header.
type tensorInfo struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// Params is a named set of parameter tensors read from a safetensors file.
//
// Lookups are recorded so callers can detect parameters a topology never consumed.
type Params struct {
	tensors  map[string]*Tensor
	metadata map[string]string

	mu   sync.Mutex
	used map[string]bool
}

// LoadParams reads a safetensors file from disk.
func LoadParams(path string) (*Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parameter file: %w", err)
	}
	defer f.Close()

	p, err := ReadParams(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ReadParams decodes a safetensors stream: an 8-byte little-endian header size,
// a JSON header, then the raw little-endian tensor data. Only F32 tensors are accepted.
func ReadParams(r io.Reader) (*Params, error) {
	var headerLen uint64
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("%w: failed to read header length: %v", shared.ErrInvalidParams, err)
	}
	if headerLen == 0 || headerLen > maxHeaderBytes {
		return nil, fmt.Errorf("%w: header length %d out of range", shared.ErrInvalidParams, headerLen)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", shared.ErrInvalidParams, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimRight(header, " "), &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse header: %v", shared.ErrInvalidParams, err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read tensor data: %v", shared.ErrInvalidParams, err)
	}

	p := &Params{
		tensors:  make(map[string]*Tensor, len(raw)),
		metadata: map[string]string{},
		used:     map[string]bool{},
	}

	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &p.metadata); err != nil {
				return nil, fmt.Errorf("%w: bad metadata: %v", shared.ErrInvalidParams, err)
			}
			continue
		}

		var info tensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("%w: bad entry %q: %v", shared.ErrInvalidParams, name, err)
		}

		t, err := decodeTensor(info, data)
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %v", shared.ErrInvalidParams, name, err)
		}
		p.tensors[name] = t
	}

	return p, nil
}

func decodeTensor(info tensorInfo, data []byte) (*Tensor, error) {
	if info.Dtype != dtypeF32 {
		return nil, fmt.Errorf("unsupported dtype %s", info.Dtype)
	}
	// Element counts are bounded by the data section so the byte count cannot overflow.
	limit, n := len(data)/4, 1
	for _, d := range info.Shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", info.Shape)
		}
		if d != 0 && n > limit/d {
			return nil, fmt.Errorf("shape %v exceeds %d bytes of data", info.Shape, len(data))
		}
		n *= d
	}

	begin, end := info.DataOffsets[0], info.DataOffsets[1]
	if begin < 0 || end < begin || end > len(data) {
		return nil, fmt.Errorf("data offsets [%d %d] outside %d bytes", begin, end, len(data))
	}
	if want := n * 4; end-begin != want {
		return nil, fmt.Errorf("shape %v needs %d bytes, offsets span %d", info.Shape, want, end-begin)
	}

	values := make([]float32, n)
	buf := data[begin:end]
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return &Tensor{Shape: slices.Clone(info.Shape), Data: values}, nil
}

// Tensor returns the named parameter, checking it has exactly the expected shape.
func (p *Params) Tensor(name string, shape ...int) (*Tensor, error) {
	t, ok := p.tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing parameter %q", shared.ErrInvalidParams, name)
	}
	if !SameShape(t.Shape, shape) {
		return nil, fmt.Errorf("%w: parameter %q has shape %v, want %v", shared.ErrShape, name, t.Shape, shape)
	}

	p.mu.Lock()
	p.used[name] = true
	p.mu.Unlock()
	return t, nil
}

// Names returns all tensor names in sorted order.
func (p *Params) Names() []string {
	names := make([]string, 0, len(p.tensors))
	for name := range p.tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unused returns the sorted names of tensors never requested through [Params.Tensor].
func (p *Params) Unused() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var names []string
	for name := range p.tensors {
		if !p.used[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Metadata returns the free-form string metadata stored in the header.
func (p *Params) Metadata() map[string]string {
	return p.metadata
}

// WriteParams encodes tensors in safetensors layout. Tensors are laid out in name order.
func WriteParams(w io.Writer, tensors map[string]*Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	offset := 0
	for _, name := range names {
		t := tensors[name]
		size := t.Len() * 4
		header[name] = tensorInfo{Dtype: dtypeF32, Shape: t.Shape, DataOffsets: [2]int{offset, offset + size}}
		offset += size
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	// the data section starts on an 8-byte boundary
	if pad := len(hdr) % 8; pad != 0 {
		hdr = append(hdr, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(hdr))); err != nil {
		return fmt.Errorf("failed to write header length: %w", err)
	}
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	buf := make([]byte, 4)
	for _, name := range names {
		for _, v := range tensors[name].Data {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("failed to write tensor %q: %w", name, err)
			}
		}
	}
	return nil
}

// SaveParams writes tensors to path in safetensors layout.
func SaveParams(path string, tensors map[string]*Tensor, metadata map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parameter file: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := WriteParams(bw, tensors, metadata); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush parameter file: %w", err)
	}
	return f.Close()
}
