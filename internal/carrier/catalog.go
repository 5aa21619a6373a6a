package carrier

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"shipquote/internal/quote"
)

//go:embed carriers.yaml
var defaultCatalog []byte

type catalog struct {
	Carriers []Config `yaml:"carriers"`
}

// Default returns engines for the built-in carriers (FedEx, DHL, Local).
func Default() ([]*Engine, error) {
	return Parse(defaultCatalog)
}

// LoadFile reads a catalogue from path, or the built-in one when path is empty.
func LoadFile(path string) ([]*Engine, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read carrier catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML catalogue and builds one engine per entry, keeping
// file order. Carrier IDs must be unique.
func Parse(raw []byte) ([]*Engine, error) {
	var c catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode carrier catalog: %w", err)
	}
	if len(c.Carriers) == 0 {
		return nil, fmt.Errorf("carrier catalog is empty")
	}
	engines := make([]*Engine, 0, len(c.Carriers))
	seen := make(map[string]bool, len(c.Carriers))
	for _, cfg := range c.Carriers {
		e, err := New(cfg)
		if err != nil {
			return nil, err
		}
		if seen[e.ID()] {
			return nil, fmt.Errorf("carrier %q declared twice", e.ID())
		}
		seen[e.ID()] = true
		engines = append(engines, e)
	}
	return engines, nil
}

// Engines adapts a list of engines to the quote service interface.
func Engines(in []*Engine) []quote.Engine {
	out := make([]quote.Engine, len(in))
	for i, e := range in {
		out[i] = e
	}
	return out
}

// Filter keeps the engines whose IDs are listed, in catalogue order. An empty
// list keeps everything; an unknown ID is an error.
func Filter(engines []*Engine, ids []string) ([]*Engine, error) {
	if len(ids) == 0 {
		return engines, nil
	}
	known := make(map[string]bool, len(engines))
	for _, e := range engines {
		known[e.ID()] = true
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !known[id] {
			return nil, fmt.Errorf("unknown carrier %q", id)
		}
		want[id] = true
	}
	out := make([]*Engine, 0, len(want))
	for _, e := range engines {
		if want[e.ID()] {
			out = append(out, e)
		}
	}
	return out, nil
}
