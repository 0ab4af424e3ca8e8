package validate

import (
	"net/url"
	"regexp"

	"github.com/warden-proxy/warden/pkg/domain"
	"github.com/warden-proxy/warden/pkg/rules"
)

// queryNamePattern is the conservative allow-list for parameter names.
var queryNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// QueryValidator checks query parameter names and values.
type QueryValidator struct {
	limits rules.Limits
	lib    *rules.Library
}

// NewQueryValidator constructs a query validator bound to the given limits and
// signature library.
func NewQueryValidator(limits rules.Limits, lib *rules.Library) *QueryValidator {
	return &QueryValidator{limits: limits.Normalized(), lib: lib}
}

// Validate walks the ordered query pairs and returns the first violation.
// Values are checked in both their literal and percent-decoded form so an
// encoded payload cannot slip past the signature scan.
func (v *QueryValidator) Validate(snap domain.Snapshot) domain.Verdict {
	for _, pair := range snap.Query {
		if !queryNamePattern.MatchString(pair.Key) {
			return domain.Reject(domain.CategoryMalformedParameterName, domain.ScopeQueryName, truncateName(pair.Key))
		}

		if len(pair.Value) > v.limits.MaxQueryValueBytes {
			return domain.Reject(domain.CategoryOversizedInput, domain.ScopeQueryValue, pair.Key)
		}

		for _, form := range decodedForms(pair.Value) {
			if match, ok := v.lib.Scan(form); ok {
				return domain.Reject(match.Category.VerdictCategory(), domain.ScopeQueryValue, pair.Key).
					WithRule(match.Rule)
			}
		}
	}

	return domain.Allow()
}

// decodedForms returns the literal value plus its percent-decoded form when
// decoding changes it. A value that fails to decode is scanned literally only.
func decodedForms(value string) []string {
	forms := []string{value}
	if decoded, err := url.QueryUnescape(value); err == nil && decoded != value {
		forms = append(forms, decoded)
	}
	return forms
}
