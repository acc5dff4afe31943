package labelkb

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the on-disk shape of a knowledge base file.
type Seed struct {
	Labels []Entry `yaml:"labels"`
}

// ParseYAML decodes a seed document. It does not validate collisions; pass
// the result to NewIndex for that.
func ParseYAML(r io.Reader) ([]Entry, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse label seed: %w", err)
	}
	return seed.Labels, nil
}

// LoadYAML reads and decodes the seed file at path.
func LoadYAML(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open label seed: %w", err)
	}
	defer f.Close()
	return ParseYAML(f)
}
