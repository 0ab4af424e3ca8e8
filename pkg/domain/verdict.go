package domain

// Category classifies why a request was rejected.
type Category string

const (
	// CategoryOversizedInput marks a header, query value, or body field that
	// exceeds its configured size limit.
	CategoryOversizedInput Category = "oversized-input"
	// CategoryInvalidCharset marks disallowed control bytes in a text field.
	CategoryInvalidCharset Category = "invalid-charset"
	// CategoryInjectionSignature marks a SQL or NoSQL injection pattern match.
	CategoryInjectionSignature Category = "injection-signature"
	// CategoryScriptSignature marks an XSS / script-injection pattern match.
	CategoryScriptSignature Category = "script-signature"
	// CategoryMalformedParameterName marks a query key outside the allowed charset.
	CategoryMalformedParameterName Category = "malformed-parameter-name"
	// CategoryMalformedBody marks a body that could not be safely interpreted
	// (invalid JSON, excessive nesting).
	CategoryMalformedBody Category = "malformed-body"
	// CategoryPolicyViolation marks a request blocked by the configured
	// forwarding-header policy rather than by a builtin check.
	CategoryPolicyViolation Category = "policy-violation"
)

// Scope names the request surface a rule applies to.
type Scope string

const (
	ScopePath        Scope = "path"
	ScopeHeaderName  Scope = "header-name"
	ScopeHeaderValue Scope = "header-value"
	ScopeQueryName   Scope = "query-name"
	ScopeQueryValue  Scope = "query-value"
	ScopeBodyField   Scope = "body-field"
)

// Verdict is the outcome of validating one request. A rejecting verdict carries
// the taxonomy category, the scope that failed, and the offending field name.
// It never carries the field value: rejection responses must not echo payloads.
type Verdict struct {
	Allowed  bool
	Category Category
	Scope    Scope
	Field    string

	// Rule is the internal name of the matched rule. Diagnostic only; it is
	// logged but never returned to the client.
	Rule string
}

// Allow returns the permissive verdict.
func Allow() Verdict {
	return Verdict{Allowed: true}
}

// Reject builds a rejecting verdict for the given category, scope, and field.
func Reject(category Category, scope Scope, field string) Verdict {
	return Verdict{Category: category, Scope: scope, Field: field}
}

// WithRule annotates a rejecting verdict with the matched rule name.
func (v Verdict) WithRule(rule string) Verdict {
	v.Rule = rule
	return v
}
