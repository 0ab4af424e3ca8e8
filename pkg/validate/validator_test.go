package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-proxy/warden/pkg/domain"
	"github.com/warden-proxy/warden/pkg/rules"
)

func TestValidator_AllowsBenignRequest(t *testing.T) {
	v := New(rules.DefaultLimits(), testLibrary(t))

	verdict, flags := v.Validate(domain.Snapshot{
		Method: "POST",
		Path:   "/api/projects",
		Headers: []domain.HeaderPair{
			{Name: "Content-Type", Value: "application/json"},
		},
		Query: []domain.QueryPair{{Key: "notify", Value: "true"}},
		Body: []domain.BodyField{
			{Name: "name", Value: "Test Project"},
			{Name: "description", Value: "A test project"},
		},
	})

	assert.True(t, verdict.Allowed)
	assert.Empty(t, flags)
}

func TestValidator_RejectsPathTraversal(t *testing.T) {
	v := New(rules.DefaultLimits(), testLibrary(t))

	verdict, _ := v.Validate(domain.Snapshot{Method: "GET", Path: "/files/../../etc/passwd"})

	require.False(t, verdict.Allowed)
	assert.Equal(t, domain.ScopePath, verdict.Scope)
}

func TestValidator_RejectsEncodedPathTraversal(t *testing.T) {
	v := New(rules.DefaultLimits(), testLibrary(t))

	verdict, _ := v.Validate(domain.Snapshot{Method: "GET", Path: "/files/%2e%2e%2f%2e%2e%2fetc/passwd"})

	require.False(t, verdict.Allowed)
	assert.Equal(t, domain.ScopePath, verdict.Scope)
}

// The first failing stage wins: a request that is bad in several ways always
// reports the same category, whatever order the inputs arrived in.
func TestValidator_ReportsFirstFailingStage(t *testing.T) {
	v := New(rules.DefaultLimits(), testLibrary(t))

	verdict, _ := v.Validate(domain.Snapshot{
		Method: "GET",
		Path:   "/api/projects",
		Headers: []domain.HeaderPair{
			{Name: "X-Payload", Value: "<script>alert(1)</script>"},
		},
		Query: []domain.QueryPair{{Key: "bad key!", Value: "1"}},
	})

	require.False(t, verdict.Allowed)
	assert.Equal(t, domain.ScopeHeaderValue, verdict.Scope)
}

func TestValidator_Deterministic(t *testing.T) {
	v := New(rules.DefaultLimits(), testLibrary(t))

	snap := domain.Snapshot{
		Method:  "POST",
		Path:    "/api/projects",
		Headers: []domain.HeaderPair{{Name: "X-Forwarded-Host", Value: "a.example"}},
		Body:    []domain.BodyField{{Name: "description", Value: `1' OR 1=1; --`}},
	}

	first, firstFlags := v.Validate(snap)
	second, secondFlags := v.Validate(snap)

	assert.Equal(t, first, second)
	assert.Equal(t, firstFlags, secondFlags)
}

func TestValidator_FailsClosedOnPanic(t *testing.T) {
	// A nil library makes the path check panic; the validator must convert
	// that into a rejection, never an allow.
	v := New(rules.DefaultLimits(), nil)

	verdict, _ := v.Validate(domain.Snapshot{Method: "GET", Path: "/api/projects"})

	require.False(t, verdict.Allowed)
	assert.Equal(t, domain.CategoryMalformedBody, verdict.Category)
	assert.Equal(t, "internal.fail-closed", verdict.Rule)
}

func TestValidator_FlagsSurviveAllowedRequest(t *testing.T) {
	v := New(rules.DefaultLimits(), testLibrary(t))

	verdict, flags := v.Validate(domain.Snapshot{
		Method:  "GET",
		Path:    "/api/projects",
		Headers: []domain.HeaderPair{{Name: "X-Client-Ip", Value: "203.0.113.9"}},
	})

	assert.True(t, verdict.Allowed)
	require.Len(t, flags, 1)
	assert.Equal(t, "X-Client-Ip", flags[0].Field)
}

func TestValidator_LimitsNormalized(t *testing.T) {
	v := New(rules.Limits{}, testLibrary(t))
	assert.Equal(t, rules.DefaultLimits(), v.Limits())
}
