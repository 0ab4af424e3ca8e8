package validate

import (
	"net/url"

	"github.com/warden-proxy/warden/pkg/domain"
	"github.com/warden-proxy/warden/pkg/rules"
)

// failClosedRule names the synthetic rule reported when validation itself
// faults and the request is rejected conservatively.
const failClosedRule = "internal.fail-closed"

// Validator composes the path, header, query, and body checkers in a fixed
// order and short-circuits on the first violation. It is stateless across
// requests: the verdict is a pure function of the snapshot and the library.
type Validator struct {
	limits  rules.Limits
	lib     *rules.Library
	headers *HeaderValidator
	query   *QueryValidator
	body    *BodyValidator
}

// New constructs a Validator over the given limits and signature library.
func New(limits rules.Limits, lib *rules.Library) *Validator {
	limits = limits.Normalized()
	return &Validator{
		limits:  limits,
		lib:     lib,
		headers: NewHeaderValidator(limits, lib),
		query:   NewQueryValidator(limits, lib),
		body:    NewBodyValidator(limits, lib),
	}
}

// Limits returns the normalized limits the validator enforces.
func (v *Validator) Limits() rules.Limits {
	return v.limits
}

// Validate runs path, header, query, and body checks in order. Validators
// after the first failure are skipped, so the reported category always names
// the first failing stage. A panic in any checker converts to a rejecting
// verdict: uncertainty fails closed, never open.
func (v *Validator) Validate(snap domain.Snapshot) (verdict domain.Verdict, flags []domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			verdict = domain.Reject(domain.CategoryMalformedBody, domain.ScopeBodyField, "").
				WithRule(failClosedRule)
		}
	}()

	if reject, ok := v.checkPath(snap.Path); ok {
		return reject, nil
	}

	verdict, flags = v.headers.Validate(snap)
	if !verdict.Allowed {
		return verdict, flags
	}

	if verdict = v.query.Validate(snap); !verdict.Allowed {
		return verdict, flags
	}

	if verdict = v.body.Validate(snap); !verdict.Allowed {
		return verdict, flags
	}

	return domain.Allow(), flags
}

// checkPath scans the URL path, in both literal and percent-decoded form, for
// traversal sequences and injected constructs.
func (v *Validator) checkPath(path string) (domain.Verdict, bool) {
	forms := []string{path}
	if decoded, err := url.PathUnescape(path); err == nil && decoded != path {
		forms = append(forms, decoded)
	}
	for _, form := range forms {
		if match, ok := v.lib.Scan(form); ok {
			return domain.Reject(match.Category.VerdictCategory(), domain.ScopePath, path).WithRule(match.Rule), true
		}
	}
	return domain.Verdict{}, false
}
