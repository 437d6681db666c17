package engine

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is the tunable part of eligibility. It can be loaded from YAML; keys
// that are absent keep their defaults.
type Policy struct {
	Roles          []string `yaml:"roles"`
	ClassFragments []string `yaml:"class_fragments"`
	SkipMarkers    []string `yaml:"skip_markers"`
	OwnUI          []string `yaml:"own_ui"`
	HiddenClasses  []string `yaml:"hidden_classes"`
	MinLength      int      `yaml:"min_length"`
}

func DefaultPolicy() Policy {
	return Policy{
		Roles:          []string{"h1", "h2", "h3", "h4", "h5", "h6", "p", "span", "button", "a", "label", "li", "td", "th"},
		ClassFragments: []string{"title", "text", "label", "message", "description"},
		SkipMarkers:    []string{`[translate="no"]`, ".notranslate", "[data-no-translate]"},
		OwnUI:          []string{"[data-translator-ui]", "#page-translator"},
		HiddenClasses:  []string{"hidden", "d-none"},
		MinLength:      2,
	}
}

// LoadPolicyFile overlays the YAML file at path onto DefaultPolicy.
func LoadPolicyFile(path string) (Policy, error) {
	policy := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, fmt.Errorf("%s: %w", path, err)
	}
	return policy, nil
}

func (p Policy) Validate() error {
	if len(p.Roles) == 0 && len(p.ClassFragments) == 0 {
		return fmt.Errorf("policy needs at least one role or class fragment")
	}
	if p.MinLength < 1 {
		return fmt.Errorf("min_length must be at least 1")
	}
	for _, role := range p.Roles {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("roles must not contain blank entries")
		}
	}
	return nil
}
