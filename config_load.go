package strata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseConfig decodes a YAML document over DefaultConfig and validates the
// result. Extra audit fields are code-only and must be appended afterwards.
//
//	tenancy:
//	  mode: single-level
//	  levels:
//	    - field_name: companyId
//	      header: x-company-id
//	      required: true
//	audit:
//	  soft_delete_enabled: true
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode yaml: %w", ErrConfiguration, err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("strata: read config %s: %w", path, err)
	}
	return ParseConfig(data)
}
