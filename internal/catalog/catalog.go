// Package catalog holds the per-backend tables of available prediction
// models. Catalogs are read-only after process start.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robertftenbosch/tenbio/pkg/structapi"
)

// Entry describes one model variant: metadata served by GET /models plus the
// inference cost parameters handed to the predictor.
type Entry struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	ParametersM float64  `yaml:"parameters_m"`
	Features    []string `yaml:"features"`
	SpeedTier   string   `yaml:"speed_tier"`
	Default     bool     `yaml:"default"`
	NStep       int      `yaml:"n_step"`
	NCycle      int      `yaml:"n_cycle"`
}

// Catalog is a static model-name table for one backend.
type Catalog struct {
	entries map[string]Entry
	order   []string
}

// New builds a catalog from entries. Order is preserved for listings.
func New(entries ...Entry) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, dup := c.entries[e.Name]; dup {
			continue
		}
		c.entries[e.Name] = e
		c.order = append(c.order, e.Name)
	}
	return c
}

// LoadFile reads a yaml catalog override. The file holds a list of entries.
func LoadFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var entries []Entry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog file %s lists no models", path)
	}
	return New(entries...), nil
}

// Lookup returns the entry for name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Has reports catalog membership.
func (c *Catalog) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Default returns the entry flagged as default, falling back to the first
// entry when none is flagged.
func (c *Catalog) Default() Entry {
	for _, name := range c.order {
		if c.entries[name].Default {
			return c.entries[name]
		}
	}
	return c.entries[c.order[0]]
}

// Names returns the model names in listing order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// List renders the catalog as wire entries, marking the resident model.
func (c *Catalog) List(loadedModel string) []structapi.ModelInfo {
	out := make([]structapi.ModelInfo, 0, len(c.order))
	for _, name := range c.order {
		e := c.entries[name]
		features := make([]string, len(e.Features))
		copy(features, e.Features)
		out = append(out, structapi.ModelInfo{
			Name:        e.Name,
			Description: e.Description,
			ParametersM: e.ParametersM,
			Features:    features,
			SpeedTier:   e.SpeedTier,
			Default:     e.Default,
			Loaded:      e.Name == loadedModel,
		})
	}
	return out
}

// Protenix returns the built-in Protenix catalog.
func Protenix() *Catalog {
	return New(
		Entry{
			Name:        "protenix_base_default_v1.0.0",
			Description: "Base model v1.0 (MSA + Template + RNA MSA)",
			ParametersM: 368.48,
			Features:    []string{"MSA", "Template", "RNA MSA"},
			SpeedTier:   "slow",
			Default:     true,
			NStep:       200,
			NCycle:      10,
		},
		Entry{
			Name:        "protenix_base_20250630_v1.0.0",
			Description: "Base model v1.0 (newer PDB data, 2025-06-30 cutoff)",
			ParametersM: 368.48,
			Features:    []string{"MSA", "Template", "RNA MSA"},
			SpeedTier:   "slow",
			NStep:       200,
			NCycle:      10,
		},
		Entry{
			Name:        "protenix_base_default_v0.5.0",
			Description: "Base model v0.5 (MSA only)",
			ParametersM: 368.09,
			Features:    []string{"MSA"},
			SpeedTier:   "slow",
			NStep:       200,
			NCycle:      10,
		},
		Entry{
			Name:        "protenix_base_constraint_v0.5.0",
			Description: "Base model v0.5 with constraints (pocket/contact)",
			ParametersM: 368.30,
			Features:    []string{"MSA", "Constraints"},
			SpeedTier:   "slow",
			NStep:       200,
			NCycle:      10,
		},
		Entry{
			Name:        "protenix_mini_esm_v0.5.0",
			Description: "Mini model with ESM embeddings (no MSA search needed)",
			ParametersM: 135.22,
			Features:    []string{"ESM", "MSA"},
			SpeedTier:   "fast",
			NStep:       5,
			NCycle:      4,
		},
		Entry{
			Name:        "protenix_mini_ism_v0.5.0",
			Description: "Mini model with ISM embeddings",
			ParametersM: 135.22,
			Features:    []string{"ISM", "MSA"},
			SpeedTier:   "fast",
			NStep:       5,
			NCycle:      4,
		},
		Entry{
			Name:        "protenix_tiny_default_v0.5.0",
			Description: "Tiny model v0.5 (MSA only, fastest)",
			ParametersM: 109.50,
			Features:    []string{"MSA"},
			SpeedTier:   "fast",
			NStep:       5,
			NCycle:      4,
		},
	)
}

// ESM returns the built-in ESMFold catalog.
func ESM() *Catalog {
	return New(
		Entry{
			Name:        "esmfold_v1",
			Description: "ESMFold v1 -- fast single-chain structure prediction",
			ParametersM: 690.0,
			Features:    []string{"Protein"},
			SpeedTier:   "fast",
			Default:     true,
		},
	)
}

// ForKind resolves a built-in catalog by backend kind ("protenix" or "esm"),
// optionally overridden by a yaml file. Unknown kinds are an error.
func ForKind(kind, overridePath string) (*Catalog, error) {
	if overridePath != "" {
		return LoadFile(overridePath)
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "protenix":
		return Protenix(), nil
	case "esm":
		return ESM(), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
}

// FallbackEntry is the hard-coded listing the gateway serves when no backend
// is reachable, so GET /models never returns an empty, ambiguous result.
func FallbackEntry() structapi.ModelInfo {
	return structapi.ModelInfo{
		Name:        "protenix_base_default_v1.0.0",
		Description: "Protenix base model (default)",
		ParametersM: 368.48,
		Features:    []string{"MSA", "Template", "RNA MSA"},
		SpeedTier:   "slow",
		Default:     true,
		Loaded:      false,
	}
}
