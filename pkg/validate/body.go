package validate

import (
	"strings"

	"github.com/warden-proxy/warden/pkg/domain"
	"github.com/warden-proxy/warden/pkg/rules"
)

// operatorKeyRule names the synthetic rule reported when a body field name is
// itself an operator-injection attempt ($-prefixed keys).
const operatorKeyRule = "nosql.operator-key"

// BodyValidator checks the flattened body fields.
type BodyValidator struct {
	limits rules.Limits
	lib    *rules.Library
}

// NewBodyValidator constructs a body validator bound to the given limits and
// signature library.
func NewBodyValidator(limits rules.Limits, lib *rules.Library) *BodyValidator {
	return &BodyValidator{limits: limits.Normalized(), lib: lib}
}

// Validate walks the body fields and returns the first violation. String
// leaves get the full battery: size, control-byte charset, and signature scan.
// Opaque fields (non-JSON raw bodies) get size and charset checks only.
func (v *BodyValidator) Validate(snap domain.Snapshot) domain.Verdict {
	for _, field := range snap.Body {
		if hasOperatorKey(field.Name) {
			return domain.Reject(domain.CategoryInjectionSignature, domain.ScopeBodyField, truncateName(field.Name)).
				WithRule(operatorKeyRule)
		}

		if len(field.Value) > v.limits.MaxBodyFieldBytes {
			return domain.Reject(domain.CategoryOversizedInput, domain.ScopeBodyField, field.Name)
		}

		if hasDisallowedControlBytes(field.Value) {
			return domain.Reject(domain.CategoryInvalidCharset, domain.ScopeBodyField, field.Name)
		}

		if field.Opaque {
			continue
		}

		if match, ok := v.lib.Scan(field.Value); ok {
			return domain.Reject(match.Category.VerdictCategory(), domain.ScopeBodyField, field.Name).
				WithRule(match.Rule)
		}
	}

	return domain.Allow()
}

// hasOperatorKey reports whether any path segment of the field name starts
// with '$' (MongoDB-style operator injection through keys).
func hasOperatorKey(name string) bool {
	return strings.HasPrefix(name, "$") || strings.Contains(name, ".$")
}

// hasDisallowedControlBytes reports whether the value contains control bytes
// outside the tab/newline/carriage-return whitelist. Raw binary content, such
// as an embedded image header, fails here.
func hasDisallowedControlBytes(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 0x20 && b != 0x7f {
			continue
		}
		switch b {
		case '\t', '\n', '\r':
			continue
		}
		return true
	}
	return false
}
