// Package rules implements the precompiled signature library consulted by the
// request validators. A Library is immutable after construction and safe to
// share across concurrent validations. Patterns compile to Go's RE2 engine,
// which guarantees linear-time matching on adversarial input.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/warden-proxy/warden/pkg/domain"
)

// Severity represents the impact level of a signature match.
type Severity string

const (
	// SeverityLow indicates informational detections.
	SeverityLow Severity = "low"
	// SeverityMedium indicates a suspicious but not critical match.
	SeverityMedium Severity = "medium"
	// SeverityHigh indicates a critical match that requires blocking.
	SeverityHigh Severity = "high"
)

// Category groups signatures by the attack class they detect.
type Category string

const (
	// CategoryScript covers XSS and script-injection constructs.
	CategoryScript Category = "script"
	// CategoryInjection covers SQL injection patterns.
	CategoryInjection Category = "injection"
	// CategoryOperator covers NoSQL operator injection in values.
	CategoryOperator Category = "operator"
	// CategoryTraversal covers filesystem path traversal sequences.
	CategoryTraversal Category = "traversal"
	// CategoryCommand covers shell command injection sequences.
	CategoryCommand Category = "command"
)

// VerdictCategory maps a signature category onto the rejection taxonomy.
// Script signatures report as script-signature; every other class reports as
// injection-signature.
func (c Category) VerdictCategory() domain.Category {
	if c == CategoryScript {
		return domain.CategoryScriptSignature
	}
	return domain.CategoryInjectionSignature
}

// Rule declares a single detection signature.
type Rule struct {
	Name     string
	Pattern  string
	Category Category
	Severity Severity
}

// Match reports a signature hit. The matched text itself is intentionally not
// carried: callers must not echo offending payloads.
type Match struct {
	Rule     string
	Category Category
	Severity Severity
}

// Config bundles the rule set for a Library.
type Config struct {
	Rules []Rule

	// DisabledCategories lists signature categories to skip at compile time.
	DisabledCategories []Category
}

type compiledRule struct {
	name     string
	expr     *regexp.Regexp
	category Category
	severity Severity
}

// Library is the immutable, precompiled signature set.
type Library struct {
	rules []compiledRule
}

// NewLibrary compiles the configured rules into a Library. Rules in a disabled
// category are dropped; any invalid rule aborts construction.
func NewLibrary(cfg Config) (*Library, error) {
	disabled := make(map[Category]struct{}, len(cfg.DisabledCategories))
	for _, c := range cfg.DisabledCategories {
		disabled[c] = struct{}{}
	}

	compiled := make([]compiledRule, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			return nil, fmt.Errorf("rules: rule name is required")
		}
		pattern := strings.TrimSpace(rule.Pattern)
		if pattern == "" {
			return nil, fmt.Errorf("rules: pattern is required for rule %s", name)
		}
		category := rule.Category
		if category == "" {
			return nil, fmt.Errorf("rules: category is required for rule %s", name)
		}
		if !isValidCategory(category) {
			return nil, fmt.Errorf("rules: invalid category %q for rule %s", category, name)
		}
		if _, skip := disabled[category]; skip {
			continue
		}
		severity := rule.Severity
		if severity == "" {
			severity = SeverityMedium
		}
		if !isValidSeverity(severity) {
			return nil, fmt.Errorf("rules: invalid severity %q for rule %s", severity, name)
		}
		expr, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("rules: invalid pattern for rule %s: %w", name, err)
		}
		compiled = append(compiled, compiledRule{
			name:     name,
			expr:     expr,
			category: category,
			severity: severity,
		})
	}

	return &Library{rules: compiled}, nil
}

// DefaultLibrary compiles the builtin registry rule set.
func DefaultLibrary() (*Library, error) {
	return NewLibrary(Config{Rules: GlobalRegistry().All()})
}

// Scan returns the first rule matching text. Rules are evaluated in
// registration order so the reported rule is deterministic for a given input.
func (l *Library) Scan(text string) (Match, bool) {
	for _, rule := range l.rules {
		if rule.expr.MatchString(text) {
			return Match{Rule: rule.name, Category: rule.category, Severity: rule.severity}, true
		}
	}
	return Match{}, false
}

// ScanAll returns every matching rule, in registration order.
func (l *Library) ScanAll(text string) []Match {
	var matches []Match
	for _, rule := range l.rules {
		if rule.expr.MatchString(text) {
			matches = append(matches, Match{Rule: rule.name, Category: rule.category, Severity: rule.severity})
		}
	}
	return matches
}

// Len reports the number of compiled rules.
func (l *Library) Len() int {
	return len(l.rules)
}

func isValidSeverity(severity Severity) bool {
	switch severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

func isValidCategory(category Category) bool {
	switch category {
	case CategoryScript, CategoryInjection, CategoryOperator, CategoryTraversal, CategoryCommand:
		return true
	default:
		return false
	}
}
