package edition

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EditionConfig is the registry configuration file.
type EditionConfig struct {
	// Variant selects a built-in field set: metadata, uri-metadata or full.
	Variant string `yaml:"variant" json:"variant"`
	// Fields defines a custom field set instead of a built-in variant. The
	// Variant value is then used as its name.
	Fields []Field `yaml:"fields,omitempty" json:"fields,omitempty"`
	// Name and Symbol are used by the constructor when a deploy request
	// leaves them empty.
	Name   string `yaml:"name" json:"name"`
	Symbol string `yaml:"symbol" json:"symbol"`
}

// DefaultEditionConfig returns the default configuration.
func DefaultEditionConfig() *EditionConfig {
	return &EditionConfig{
		Variant: DefaultVariant.Name(),
		Name:    "Edition",
		Symbol:  "ED",
	}
}

// LoadEditionConfig loads configuration from a YAML file. If the file does
// not exist, the default configuration is returned. EDITION_VARIANT
// overrides the variant from the file.
func LoadEditionConfig(path string) (*EditionConfig, error) {
	cfg := DefaultEditionConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse edition config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read edition config: %w", err)
		}
	}

	if v := os.Getenv("EDITION_VARIANT"); v != "" {
		cfg.Variant = v
		cfg.Fields = nil
	}
	return cfg, nil
}

// ResolveVariant returns the variant the configuration selects.
func (c *EditionConfig) ResolveVariant() (Variant, error) {
	if len(c.Fields) > 0 {
		return NewVariant(c.Variant, c.Fields...)
	}
	return LookupVariant(c.Variant)
}
