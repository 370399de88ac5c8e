package reduce

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule drops a log record when Match returns true for its errorMessage.
type Rule struct {
	Name    string
	StatKey string
	Match   func(errorMessage string) bool
}

// Contains builds a rule matching messages that contain substr.
func Contains(name, statKey, substr string) Rule {
	return Rule{
		Name:    name,
		StatKey: statKey,
		Match: func(msg string) bool {
			return strings.Contains(msg, substr)
		},
	}
}

// Pattern builds a rule matching messages against a regular expression.
func Pattern(name, statKey, expr string) (Rule, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", name, err)
	}
	return Rule{
		Name:    name,
		StatKey: statKey,
		Match:   re.MatchString,
	}, nil
}

// RuleSpec is the configuration form of a rule. Exactly one of Contains and
// Pattern is set.
type RuleSpec struct {
	Name     string `mapstructure:"name" yaml:"name"`
	StatKey  string `mapstructure:"stat-key" yaml:"stat-key"`
	Contains string `mapstructure:"contains" yaml:"contains"`
	Pattern  string `mapstructure:"pattern" yaml:"pattern"`
}

// Build turns specs into rules, in order.
func Build(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("rule %s: duplicate name", s.Name)
		}
		seen[s.Name] = true

		statKey := s.StatKey
		if statKey == "" {
			statKey = s.Name
		}

		switch {
		case s.Contains != "" && s.Pattern != "":
			return nil, fmt.Errorf("rule %s: set either contains or pattern, not both", s.Name)
		case s.Contains != "":
			rules = append(rules, Contains(s.Name, statKey, s.Contains))
		case s.Pattern != "":
			r, err := Pattern(s.Name, statKey, s.Pattern)
			if err != nil {
				return nil, err
			}
			rules = append(rules, r)
		default:
			return nil, fmt.Errorf("rule %s: contains or pattern is required", s.Name)
		}
	}
	return rules, nil
}

// DefaultRules is the noise filter applied when no rules are configured.
// These diagnostics are emitted by devices during normal operation and do
// not indicate a compliance problem.
func DefaultRules() []Rule {
	return []Rule{
		Contains("sequentialIdBreak", "sequentialIdBreakRemoved", "SEQUENTIAL ID BREAK WARNING"),
		Contains("powerDataDiagnostic", "powerDataDiagnosticRemoved", "POWER DATA DIAGNOSTIC"),
		Contains("engineSyncDiagnostic", "engineSyncDiagnosticRemoved", "ENGINE SYNCHRONIZATION DIAGNOSTIC"),
		Contains("timingCompliance", "timingComplianceRemoved", "TIMING COMPLIANCE"),
		Contains("unidentifiedDrivingRecords", "unidentifiedDrivingRecordsRemoved", "UNIDENTIFIED DRIVING RECORDS"),
		Contains("dataTransferCompliance", "dataTransferComplianceRemoved", "DATA TRANSFER COMPLIANCE"),
	}
}
