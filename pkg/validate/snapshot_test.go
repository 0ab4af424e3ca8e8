package validate

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-proxy/warden/pkg/domain"
	"github.com/warden-proxy/warden/pkg/rules"
)

func TestBuildSnapshot_FlattensJSONBody(t *testing.T) {
	body := `{"name":"Test Project","meta":{"owner":"sre","tags":["a","b"]},"count":3}`
	r := httptest.NewRequest("POST", "/api/projects", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	snap, verdict, err := BuildSnapshot(r, rules.DefaultLimits())
	require.NoError(t, err)
	require.True(t, verdict.Allowed)

	fields := map[string]string{}
	for _, f := range snap.Body {
		fields[f.Name] = f.Value
	}
	assert.Equal(t, "Test Project", fields["name"])
	assert.Equal(t, "sre", fields["meta.owner"])
	assert.Equal(t, "a", fields["meta.tags[0]"])
	assert.Equal(t, "b", fields["meta.tags[1]"])
	// Non-string leaves still surface their key names.
	_, ok := fields["count"]
	assert.True(t, ok)
}

func TestBuildSnapshot_BodyIsReplayable(t *testing.T) {
	body := `{"name":"Test Project"}`
	r := httptest.NewRequest("POST", "/api/projects", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	_, verdict, err := BuildSnapshot(r, rules.DefaultLimits())
	require.NoError(t, err)
	require.True(t, verdict.Allowed)

	replayed, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(replayed))
}

func TestBuildSnapshot_RejectsOversizedBody(t *testing.T) {
	limits := rules.DefaultLimits()
	limits.MaxBodyBytes = 64

	r := httptest.NewRequest("POST", "/api/projects", strings.NewReader(strings.Repeat("x", 65)))

	_, verdict, err := BuildSnapshot(r, limits)
	require.NoError(t, err)
	require.False(t, verdict.Allowed)
	assert.Equal(t, domain.CategoryOversizedInput, verdict.Category)
	assert.Equal(t, domain.ScopeBodyField, verdict.Scope)
}

func TestBuildSnapshot_RejectsInvalidJSON(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/projects", strings.NewReader(`{"name": "broken`))
	r.Header.Set("Content-Type", "application/json")

	_, verdict, err := BuildSnapshot(r, rules.DefaultLimits())
	require.NoError(t, err)
	require.False(t, verdict.Allowed)
	assert.Equal(t, domain.CategoryMalformedBody, verdict.Category)
}

func TestBuildSnapshot_RejectsDeeplyNestedJSON(t *testing.T) {
	bomb := strings.Repeat("[", 150) + strings.Repeat("]", 150)
	r := httptest.NewRequest("POST", "/api/projects", strings.NewReader(bomb))
	r.Header.Set("Content-Type", "application/json")

	_, verdict, err := BuildSnapshot(r, rules.DefaultLimits())
	require.NoError(t, err)
	require.False(t, verdict.Allowed)
	assert.Equal(t, domain.CategoryMalformedBody, verdict.Category)
}

func TestBuildSnapshot_NonJSONBodyIsOpaque(t *testing.T) {
	r := httptest.NewRequest("POST", "/upload", strings.NewReader("name=x&note=hello"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	snap, verdict, err := BuildSnapshot(r, rules.DefaultLimits())
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
	require.Len(t, snap.Body, 1)
	assert.True(t, snap.Body[0].Opaque)
}

func TestBuildSnapshot_SniffsJSONWithoutContentType(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/projects", strings.NewReader(`  {"name":"x"}`))

	snap, verdict, err := BuildSnapshot(r, rules.DefaultLimits())
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
	require.NotEmpty(t, snap.Body)
	assert.False(t, snap.Body[0].Opaque)
}

func TestBuildSnapshot_PreservesQueryOrder(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/projects?b=2&a=1&b=3", nil)

	snap, verdict, err := BuildSnapshot(r, rules.DefaultLimits())
	require.NoError(t, err)
	require.True(t, verdict.Allowed)

	require.Len(t, snap.Query, 3)
	assert.Equal(t, "b", snap.Query[0].Key)
	assert.Equal(t, "a", snap.Query[1].Key)
	assert.Equal(t, "3", snap.Query[2].Value)
}

func TestBuildSnapshot_EmptyBody(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/projects", nil)

	snap, verdict, err := BuildSnapshot(r, rules.DefaultLimits())
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	assert.Empty(t, snap.Body)
}
