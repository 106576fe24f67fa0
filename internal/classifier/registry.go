package classifier

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/digits/internal/nn"
	"github.com/desertthunder/digits/internal/shared"
)

// Entry pairs a loaded model with its display name.
type Entry struct {
	Name  string
	Model Model
}

// Registry holds the loaded models in response order: CNN, MLP, LR.
//
// A Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	entries []Entry
}

// Paths maps each topology to its parameter file.
type Paths map[Kind]string

// PathsFromConfig resolves the configured parameter file names.
func PathsFromConfig(cfg shared.ModelsConfig) Paths {
	return Paths{
		KindCNN: cfg.Path(cfg.CNN),
		KindMLP: cfg.Path(cfg.MLP),
		KindLR:  cfg.Path(cfg.LR),
	}
}

// Load reads every parameter file and builds the registry.
// Any missing, malformed or incompatible file fails the whole load.
func Load(paths Paths, logger *log.Logger) (*Registry, error) {
	params := make(map[Kind]*nn.Params, len(Kinds))
	for _, kind := range Kinds {
		path, ok := paths[kind]
		if !ok || path == "" {
			return nil, fmt.Errorf("%w: no parameter file configured for %s", shared.ErrMissingConfig, kind)
		}

		p, err := nn.LoadParams(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s parameters: %w", kind, err)
		}
		if logger != nil {
			logger.Debug("loaded parameters", "model", kind, "path", path, "tensors", len(p.Names()))
		}
		params[kind] = p
	}

	return FromParams(params)
}

// FromParams builds the registry from already-decoded parameter sets.
func FromParams(params map[Kind]*nn.Params) (*Registry, error) {
	r := &Registry{entries: make([]Entry, 0, len(Kinds))}
	for _, kind := range Kinds {
		p, ok := params[kind]
		if !ok {
			return nil, fmt.Errorf("%w: no parameters for %s", shared.ErrInvalidParams, kind)
		}

		m, err := build(kind, p)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s: %w", kind, err)
		}
		if unused := p.Unused(); len(unused) > 0 {
			return nil, fmt.Errorf("%w: unexpected %s parameters: %s", shared.ErrInvalidParams, kind, strings.Join(unused, ", "))
		}

		r.entries = append(r.entries, Entry{Name: kind.String(), Model: m})
	}
	return r, nil
}

func build(kind Kind, p *nn.Params) (Model, error) {
	switch kind {
	case KindCNN:
		return newCNN(p)
	case KindMLP:
		return newMLP(p)
	case KindLR:
		return newLR(p)
	default:
		return nil, fmt.Errorf("unknown model kind %d", int(kind))
	}
}

// Entries returns the registered models in response order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns the display names in response order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Get returns the model of the given kind.
func (r *Registry) Get(kind Kind) (Model, bool) {
	for _, e := range r.entries {
		if e.Model.Kind() == kind {
			return e.Model, true
		}
	}
	return nil, false
}
