package config

import (
	"fmt"
	"os"
	"time"

	"github.com/warden-proxy/warden/pkg/rules"
)

// Snapshot is the immutable compiled form of the validation configuration.
// Every request is validated against exactly one snapshot, so a reload never
// produces a partially updated rule set mid-request.
type Snapshot struct {
	Generation int64
	ReceivedAt time.Time

	Limits  rules.Limits
	Library *rules.Library

	ForwardingMode ForwardingHeaderMode
	// RegoModule holds the policy source when ForwardingMode is "policy".
	RegoModule string
}

// Compile resolves builtin and extra rules into a precompiled library and
// returns the immutable snapshot for the given generation.
func (v ValidationConfig) Compile(generation int64) (Snapshot, error) {
	disabled := make([]rules.Category, 0, len(v.DisabledCategories))
	for _, c := range v.DisabledCategories {
		disabled = append(disabled, rules.Category(c))
	}

	ruleSet := rules.GlobalRegistry().All()
	for _, spec := range v.ExtraRules {
		ruleSet = append(ruleSet, rules.Rule{
			Name:     spec.Name,
			Pattern:  spec.Pattern,
			Category: rules.Category(spec.Category),
			Severity: rules.Severity(spec.Severity),
		})
	}

	library, err := rules.NewLibrary(rules.Config{Rules: ruleSet, DisabledCategories: disabled})
	if err != nil {
		return Snapshot{}, fmt.Errorf("compile validation rules: %w", err)
	}

	snap := Snapshot{
		Generation:     generation,
		ReceivedAt:     time.Now(),
		Limits:         v.Limits.Normalized(),
		Library:        library,
		ForwardingMode: v.ForwardingHeaders.Mode,
	}
	if snap.ForwardingMode == "" {
		snap.ForwardingMode = ModeLog
	}

	if snap.ForwardingMode == ModePolicy {
		// #nosec G304 -- Policy path is configured at startup
		module, err := os.ReadFile(v.ForwardingHeaders.RegoPath)
		if err != nil {
			return Snapshot{}, fmt.Errorf("read forwarding header policy: %w", err)
		}
		snap.RegoModule = string(module)
	}

	return snap, nil
}
