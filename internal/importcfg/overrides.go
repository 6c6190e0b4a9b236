package importcfg

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wms-admin/gateway/internal/models"
)

// RuleOverrides is the YAML format for site-specific validation rules
// appended to the built-in rule sets.
type RuleOverrides struct {
	Entities []EntityOverride `yaml:"entities"`
}

// EntityOverride carries additional rules for one entity type.
type EntityOverride struct {
	Entity string         `yaml:"entity"`
	Rules  []OverrideRule `yaml:"rules"`
}

// OverrideRule mirrors models.ValidationRule in YAML form.
type OverrideRule struct {
	Field   string `yaml:"field"`
	Type    string `yaml:"type"`
	Value   int    `yaml:"value,omitempty"`
	Message string `yaml:"message"`
}

// LoadRuleOverrides parses a YAML rule-override file.
func LoadRuleOverrides(path string) (*RuleOverrides, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseRuleOverrides(file)
}

// ParseRuleOverrides parses overrides from an io.Reader.
func ParseRuleOverrides(r io.Reader) (*RuleOverrides, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var overrides RuleOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, err
	}
	return &overrides, nil
}

// Apply appends the override rules to the matching registry configs.
// Unknown entities or fields are rejected so a typo in the override file
// fails loudly at startup instead of silently validating nothing.
func (r *Registry) Apply(overrides *RuleOverrides) error {
	for _, eo := range overrides.Entities {
		cfg, ok := r.Get(eo.Entity)
		if !ok {
			return fmt.Errorf("rule override for unknown entity %q", eo.Entity)
		}
		for _, rule := range eo.Rules {
			if _, ok := cfg.FieldByKey(rule.Field); !ok {
				return fmt.Errorf("rule override for unknown field %q of entity %q", rule.Field, eo.Entity)
			}
			cfg.ValidationRules = append(cfg.ValidationRules, models.ValidationRule{
				Field:   rule.Field,
				Type:    models.RuleType(rule.Type),
				Value:   rule.Value,
				Message: rule.Message,
			})
		}
	}
	return nil
}
