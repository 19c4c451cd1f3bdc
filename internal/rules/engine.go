// Package rules maps free-text transaction type codes to debit or credit.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

// Direction is the side of the ledger a type code lands on
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// TypeCode converts the direction to the remote lookup code
func (d Direction) TypeCode() domain.TypeCode {
	if d == DirectionCredit {
		return domain.TypeCredit
	}
	return domain.TypeDebit
}

func validDirection(d Direction) bool {
	return d == DirectionDebit || d == DirectionCredit
}

// Rule maps a set of TRNTYPE codes to a direction.
//
// Rules should be created via YAML loading (NewEngine, LoadEmbedded,
// LoadFromFile) or NewRule; direct construction skips validation.
type Rule struct {
	Name      string    `yaml:"name"`
	Codes     []string  `yaml:"codes"`
	Direction Direction `yaml:"direction"`
	Priority  int       `yaml:"priority"`
}

// NewRule creates a validated rule
func NewRule(name string, codes []string, direction Direction, priority int) (*Rule, error) {
	r := Rule{Name: name, Codes: codes, Direction: direction, Priority: priority}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rule) validate() error {
	if !validDirection(r.Direction) {
		return fmt.Errorf("invalid direction %q (must be 'debit' or 'credit')", r.Direction)
	}
	if r.Priority < 0 || r.Priority > 999 {
		return fmt.Errorf("priority must be in [0,999], got %d", r.Priority)
	}
	if len(r.Codes) == 0 {
		return fmt.Errorf("codes cannot be empty")
	}
	for _, c := range r.Codes {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("codes cannot contain an empty code")
		}
	}
	return nil
}

// RuleSet represents the top-level YAML structure
type RuleSet struct {
	Default Direction `yaml:"default"`
	Rules   []Rule    `yaml:"rules"`
}

// Engine classifies type codes. Safe for concurrent use after construction.
type Engine struct {
	rules    []Rule // Sorted by priority (highest first)
	fallback Direction
}

// NewEngine creates a rules engine from YAML data
func NewEngine(rulesData []byte) (*Engine, error) {
	var ruleSet RuleSet
	if err := yaml.Unmarshal(rulesData, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules (check syntax, indentation, and field names): %w", err)
	}
	return newEngine(ruleSet)
}

func newEngine(ruleSet RuleSet) (*Engine, error) {
	fallback := ruleSet.Default
	if fallback == "" {
		fallback = DirectionDebit
	}
	if !validDirection(fallback) {
		return nil, fmt.Errorf("invalid default direction %q", fallback)
	}

	for i := range ruleSet.Rules {
		if err := ruleSet.Rules[i].validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, ruleSet.Rules[i].Name, err)
		}
	}

	// Stable sort keeps YAML order for equal priorities.
	sortedRules := make([]Rule, len(ruleSet.Rules))
	copy(sortedRules, ruleSet.Rules)
	sort.SliceStable(sortedRules, func(i, j int) bool {
		return sortedRules[i].Priority > sortedRules[j].Priority
	})

	return &Engine{rules: sortedRules, fallback: fallback}, nil
}

// LoadEmbedded loads the embedded rules.yaml file
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules (possible binary corruption): %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from path and layers them over the embedded rules.
// File rules win over embedded rules of equal priority; a file default replaces
// the embedded default.
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var base, extra RuleSet
	if err := yaml.Unmarshal(embeddedRules, &base); err != nil {
		return nil, fmt.Errorf("failed to load embedded rules (possible binary corruption): %w", err)
	}
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules in %q: %w", path, err)
	}

	merged := RuleSet{Default: base.Default, Rules: append(extra.Rules, base.Rules...)}
	if extra.Default != "" {
		merged.Default = extra.Default
	}

	engine, err := newEngine(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return engine, nil
}

// Classify returns the lookup code for a TRNTYPE value. Unknown and empty
// codes get the default direction.
func (e *Engine) Classify(trnType string) domain.TypeCode {
	code := strings.ToUpper(strings.TrimSpace(trnType))
	if code != "" {
		for _, rule := range e.rules {
			for _, c := range rule.Codes {
				if strings.ToUpper(strings.TrimSpace(c)) == code {
					return rule.Direction.TypeCode()
				}
			}
		}
	}
	return e.fallback.TypeCode()
}

// GetRules returns a copy of the rules in priority order.
func (e *Engine) GetRules() []Rule {
	result := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		r.Codes = append([]string(nil), r.Codes...)
		result[i] = r
	}
	return result
}
