package ui

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultCatalogYAML []byte

// Catalog maps step keys to ordered selector candidates.
type Catalog map[string][]SelectorSpec

// DefaultCatalog parses the embedded SoundOn catalog.
func DefaultCatalog() (Catalog, error) {
	return parseCatalog(defaultCatalogYAML)
}

// LoadCatalog returns the embedded catalog with any keys from overridePath
// replacing the defaults wholesale. An empty path returns the defaults.
func LoadCatalog(overridePath string) (Catalog, error) {
	catalog, err := DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("embedded selectors: %w", err)
	}
	if strings.TrimSpace(overridePath) == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("read selectors file: %w", err)
	}
	overrides, err := parseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("selectors file %s: %w", overridePath, err)
	}
	for key, specs := range overrides {
		catalog[key] = specs
	}
	return catalog, nil
}

func parseCatalog(data []byte) (Catalog, error) {
	var raw map[string][]SelectorSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	catalog := make(Catalog, len(raw))
	for key, specs := range raw {
		for i := range specs {
			specs[i].Kind = SelectorKind(strings.ToLower(strings.TrimSpace(string(specs[i].Kind))))
			if err := specs[i].Validate(); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
		}
		catalog[key] = specs
	}
	return catalog, nil
}

// Get returns a copy of the candidates for key with placeholders expanded.
// Missing keys return nil.
func (c Catalog) Get(key string, vars map[string]string) []SelectorSpec {
	specs := c[key]
	if len(specs) == 0 {
		return nil
	}
	out := make([]SelectorSpec, len(specs))
	for i, spec := range specs {
		out[i] = spec.Expand(vars)
	}
	return out
}

// Require reports every key that has no candidates.
func (c Catalog) Require(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if len(c[key]) == 0 {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("selector catalog missing keys: %s", strings.Join(missing, ", "))
}
