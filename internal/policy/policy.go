// Package policy loads per-company enrollment limits.
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxHSAContribution applies when no policy file is configured.
const DefaultMaxHSAContribution int64 = 4300

// Limits are the enrollment settings of one company.
type Limits struct {
	MaxHSAContribution int64 `yaml:"max_hsa_contribution"`
}

type document struct {
	Default   Limits            `yaml:"default"`
	Companies map[string]Limits `yaml:"companies"`
}

// Registry answers policy questions per company.
type Registry struct {
	defaults  Limits
	companies map[string]Limits
}

// NewRegistry returns a Registry that only knows the built-in default.
func NewRegistry() *Registry {
	return &Registry{
		defaults:  Limits{MaxHSAContribution: DefaultMaxHSAContribution},
		companies: map[string]Limits{},
	}
}

// Load reads the policy file at path. An empty path yields the built-in
// defaults.
func Load(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	r := NewRegistry()
	if doc.Default.MaxHSAContribution < 0 {
		return nil, fmt.Errorf("default max_hsa_contribution must not be negative")
	}
	if doc.Default.MaxHSAContribution > 0 {
		r.defaults = doc.Default
	}
	for code, limits := range doc.Companies {
		if limits.MaxHSAContribution < 0 {
			return nil, fmt.Errorf("company %q: max_hsa_contribution must not be negative", code)
		}
		if limits.MaxHSAContribution == 0 {
			limits.MaxHSAContribution = r.defaults.MaxHSAContribution
		}
		r.companies[normalize(code)] = limits
	}
	return r, nil
}

// MaxHSAContribution returns the HSA limit of company, falling back to the
// default.
func (r *Registry) MaxHSAContribution(company string) int64 {
	if limits, ok := r.companies[normalize(company)]; ok {
		return limits.MaxHSAContribution
	}
	return r.defaults.MaxHSAContribution
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
