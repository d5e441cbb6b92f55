// Package seeds provides the exemplar instructions shown to the model when
// synthesizing new ones.
package seeds

import (
	"embed"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var builtin embed.FS

// Seed is a hand-written example instruction and the calls that satisfy it.
type Seed struct {
	Instruction string `yaml:"instruction"`
	Level       int    `yaml:"level"`
	Pattern     string `yaml:"pattern"`
}

// Bank groups single-tool and two-step exemplars.
type Bank struct {
	Single []Seed `yaml:"single"`
	Multi  []Seed `yaml:"multi"`
}

// Builtin returns the bundled seed bank for a domain ("emf" or "atl").
func Builtin(domain string) (*Bank, error) {
	data, err := builtin.ReadFile("data/" + domain + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no built-in seeds for %q", domain)
	}
	return parse(data)
}

// LoadFile reads a seed bank from a YAML file.
func LoadFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seeds file: %w", err)
	}
	b, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

func parse(data []byte) (*Bank, error) {
	var b Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse seeds YAML: %w", err)
	}
	if len(b.Single) == 0 && len(b.Multi) == 0 {
		return nil, fmt.Errorf("seed bank is empty")
	}
	return &b, nil
}

// ForPair picks up to n two-step seeds without replacement. Seeds whose
// calls mention both tools are preferred; otherwise any seed with two calls
// qualifies.
func (b *Bank) ForPair(toolA, toolB string, n int, rng *rand.Rand) []Seed {
	var candidates []Seed
	for _, s := range b.Multi {
		if strings.Contains(s.Pattern, toolA) && strings.Contains(s.Pattern, toolB) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		for _, s := range b.Multi {
			if strings.Contains(s.Pattern, ",") {
				candidates = append(candidates, s)
			}
		}
	}
	return sample(candidates, n, rng)
}

// ForTool picks up to n single-tool seeds without replacement, preferring
// seeds that call the tool and falling back to any seed.
func (b *Bank) ForTool(tool string, n int, rng *rand.Rand) []Seed {
	var candidates []Seed
	for _, s := range b.Single {
		if strings.Contains(s.Pattern, tool) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		candidates = b.Single
	}
	return sample(candidates, n, rng)
}

func sample(seeds []Seed, n int, rng *rand.Rand) []Seed {
	if n > len(seeds) {
		n = len(seeds)
	}
	out := make([]Seed, 0, n)
	for _, i := range rng.Perm(len(seeds))[:n] {
		out = append(out, seeds[i])
	}
	return out
}
