package validate

import (
	"net/textproto"

	"github.com/warden-proxy/warden/pkg/domain"
	"github.com/warden-proxy/warden/pkg/rules"
)

// forwardingHeaders are spoofable routing headers. Their presence is never a
// rejection on its own: they pass through but are flagged for observability,
// and may be escalated by the forwarding-header policy.
var forwardingHeaders = map[string]struct{}{
	"X-Forwarded-Host": {},
	"X-Forwarded-For":  {},
	"X-Forwarded":      {},
	"X-Originating-Ip": {},
	"X-Remote-Ip":      {},
	"X-Real-Ip":        {},
	"X-Client-Ip":      {},
	"Forwarded":        {},
}

// IsForwardingHeader reports whether name is a spoofable routing header.
func IsForwardingHeader(name string) bool {
	_, ok := forwardingHeaders[textproto.CanonicalMIMEHeaderKey(name)]
	return ok
}

// HeaderValidator checks header names and values for size and content
// violations.
type HeaderValidator struct {
	limits rules.Limits
	lib    *rules.Library
}

// NewHeaderValidator constructs a header validator bound to the given limits
// and signature library.
func NewHeaderValidator(limits rules.Limits, lib *rules.Library) *HeaderValidator {
	return &HeaderValidator{limits: limits.Normalized(), lib: lib}
}

// Validate walks the ordered header pairs and returns the first violation.
// Flags for forwarding headers are collected regardless of the verdict.
func (v *HeaderValidator) Validate(snap domain.Snapshot) (domain.Verdict, []domain.Event) {
	var flags []domain.Event

	for _, pair := range snap.Headers {
		if IsForwardingHeader(pair.Name) {
			flags = append(flags, domain.Event{
				Kind:  domain.EventFlagged,
				Scope: domain.ScopeHeaderName,
				Field: pair.Name,
			})
		}

		if len(pair.Name) > v.limits.MaxHeaderNameBytes {
			return domain.Reject(domain.CategoryOversizedInput, domain.ScopeHeaderName, truncateName(pair.Name)), flags
		}
		if len(pair.Value) > v.limits.MaxHeaderValueBytes {
			return domain.Reject(domain.CategoryOversizedInput, domain.ScopeHeaderValue, pair.Name), flags
		}
		if match, ok := v.lib.Scan(pair.Value); ok {
			return domain.Reject(match.Category.VerdictCategory(), domain.ScopeHeaderValue, pair.Name).
				WithRule(match.Rule), flags
		}
	}

	return domain.Allow(), flags
}

// truncateName bounds reported field names so an oversized header name cannot
// smuggle an arbitrarily large payload into logs and metrics labels.
func truncateName(name string) string {
	const max = 64
	if len(name) <= max {
		return name
	}
	return name[:max] + "..."
}
