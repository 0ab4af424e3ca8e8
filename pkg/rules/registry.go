package rules

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maintains a threadsafe catalogue of reusable detection rules.
// Registration order is preserved so compiled libraries scan deterministically.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
	order []string
}

// NewRegistry creates an empty registry instance.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// Register inserts or replaces a rule definition.
func (r *Registry) Register(rule Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("rules: registry rule name is required")
	}
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("rules: registry rule %s missing pattern", rule.Name)
	}

	key := strings.ToLower(rule.Name)

	r.mu.Lock()
	if _, exists := r.rules[key]; !exists {
		r.order = append(r.order, key)
	}
	r.rules[key] = rule
	r.mu.Unlock()
	return nil
}

// RegisterAll adds multiple rules.
func (r *Registry) RegisterAll(rules []Rule) error {
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			return err
		}
	}
	return nil
}

// Resolve fetches a rule definition by identifier.
func (r *Registry) Resolve(id string) (Rule, bool) {
	if id == "" {
		return Rule{}, false
	}

	key := strings.ToLower(id)

	r.mu.RLock()
	rule, ok := r.rules[key]
	r.mu.RUnlock()
	if !ok {
		return Rule{}, false
	}
	return rule, true
}

// All returns every registered rule in registration order.
func (r *Registry) All() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.rules[key])
	}
	return out
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// GlobalRegistry exposes the process-wide registry populated with builtin rules.
func GlobalRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = newRegistryWithBuiltins()
	})
	return defaultRegistry
}

// Builtin signature set. XSS constructs must match anywhere in a value, so
// every pattern is an unanchored, case-insensitive search.
func newRegistryWithBuiltins() *Registry {
	r := NewRegistry()
	_ = r.RegisterAll([]Rule{
		{
			Name:     "xss.script-tag",
			Pattern:  `(?i)<\s*script\b`,
			Category: CategoryScript,
			Severity: SeverityHigh,
		},
		{
			Name:     "xss.event-handler",
			Pattern:  `(?i)\bon(?:error|load|focus|start|click|mouseover|mouseout|abort|blur|change|submit)\s*=`,
			Category: CategoryScript,
			Severity: SeverityHigh,
		},
		{
			Name:     "xss.javascript-uri",
			Pattern:  `(?i)javascript\s*:`,
			Category: CategoryScript,
			Severity: SeverityHigh,
		},
		{
			Name:     "xss.dangerous-tag",
			Pattern:  `(?i)<\s*(?:iframe|object|embed|svg|marquee|applet|meta|base)\b`,
			Category: CategoryScript,
			Severity: SeverityMedium,
		},
		{
			Name:     "sql.union-select",
			Pattern:  `(?i)\bunion\s+select\b`,
			Category: CategoryInjection,
			Severity: SeverityHigh,
		},
		{
			Name:     "sql.tautology",
			Pattern:  `(?i)\bor\s+['"]?1['"]?\s*=\s*['"]?1`,
			Category: CategoryInjection,
			Severity: SeverityHigh,
		},
		{
			Name:     "sql.terminator-comment",
			Pattern:  `;\s*--`,
			Category: CategoryInjection,
			Severity: SeverityMedium,
		},
		{
			Name:     "sql.destructive-statement",
			Pattern:  `(?i)['"]\s*;?\s*(?:drop\s+table|insert\s+into|delete\s+from|truncate\s+table|alter\s+table)\b`,
			Category: CategoryInjection,
			Severity: SeverityHigh,
		},
		{
			Name:     "nosql.mongo-operator",
			Pattern:  `\$(?:where|ne|gt|gte|lt|lte|regex|in|nin|exists|type|mod|all)\b`,
			Category: CategoryOperator,
			Severity: SeverityHigh,
		},
		{
			Name:     "nosql.js-expression",
			Pattern:  `(?i)(?:\bthis\.\w+(?:\.\w+)*\s*(?:\.match\s*\(|==)|['"]\s*;?\s*return\b)`,
			Category: CategoryOperator,
			Severity: SeverityMedium,
		},
		{
			Name:     "path.traversal",
			Pattern:  `(?:\.\./|\.\.\\)`,
			Category: CategoryTraversal,
			Severity: SeverityMedium,
		},
		{
			Name:     "path.sensitive-file",
			Pattern:  `(?i)(?:etc/passwd|windows/system32)`,
			Category: CategoryTraversal,
			Severity: SeverityMedium,
		},
		{
			Name:     "cmd.chained-exec",
			Pattern:  `(?i)(?:;\s*(?:cat|wget|curl|rm)\b|\|\s*nc\b|&&\s*(?:curl|wget)\b)`,
			Category: CategoryCommand,
			Severity: SeverityHigh,
		},
	})
	return r
}
