package settings

import (
	"encoding/json"
	"fmt"
	"os"

	"instafund/internal/challenge"

	"gopkg.in/yaml.v3"
)

// LoadCatalogFile reads a rule catalog from YAML, falling back to JSON.
// Phases missing from the file keep their default rules.
func LoadCatalogFile(path string) (challenge.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return challenge.Catalog{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (challenge.Catalog, error) {
	c := challenge.DefaultCatalog()
	if err := yaml.Unmarshal(data, &c); err != nil {
		c = challenge.DefaultCatalog()
		if jerr := json.Unmarshal(data, &c); jerr != nil {
			return challenge.Catalog{}, fmt.Errorf("parse rules (tried YAML and JSON): %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return challenge.Catalog{}, err
	}
	return c, nil
}

func MarshalCatalog(c challenge.Catalog) ([]byte, error) {
	return yaml.Marshal(c)
}
