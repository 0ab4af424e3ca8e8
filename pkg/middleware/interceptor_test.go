package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-proxy/warden/pkg/config"
	"github.com/warden-proxy/warden/pkg/domain"
	"github.com/warden-proxy/warden/pkg/rules"
)

type captureSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *captureSink) Record(_ context.Context, event domain.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *captureSink) byKind(kind domain.EventKind) []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.Event
	for _, e := range c.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func compileSnapshot(t *testing.T, validation config.ValidationConfig) config.Snapshot {
	t.Helper()
	snap, err := validation.Compile(1)
	require.NoError(t, err)
	return snap
}

func newTestInterceptor(t *testing.T, validation config.ValidationConfig) (*Interceptor, *captureSink, *Metrics) {
	t.Helper()
	sink := &captureSink{}
	metrics := NewMetrics()
	interceptor := New(Options{
		Provider: config.NewStaticProvider(compileSnapshot(t, validation)),
		Sink:     sink,
		Metrics:  metrics,
	})
	return interceptor, sink, metrics
}

func echoHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
}

func defaultValidation() config.ValidationConfig {
	return config.ValidationConfig{
		Limits:            rules.DefaultLimits(),
		ForwardingHeaders: config.ForwardingHeadersConfig{Mode: config.ModeLog},
	}
}

func TestInterceptor_ForwardsBenignRequestUnchanged(t *testing.T) {
	interceptor, sink, _ := newTestInterceptor(t, defaultValidation())

	var called bool
	handler := interceptor.Wrap(echoHandler(&called))

	body := `{"name":"Test Project","description":"A test project"}`
	req := httptest.NewRequest("POST", "/api/projects", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.True(t, called, "handler should have been reached")
	assert.Equal(t, http.StatusOK, rec.Code)
	// The handler sees the body byte-for-byte after validation buffered it.
	assert.Equal(t, body, rec.Body.String())
	assert.Empty(t, sink.byKind(domain.EventRejected))
}

func TestInterceptor_SetsSecurityHeadersAndRequestID(t *testing.T) {
	interceptor, _, _ := newTestInterceptor(t, defaultValidation())
	handler := interceptor.Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestInterceptor_RejectsScriptInBody(t *testing.T) {
	interceptor, sink, _ := newTestInterceptor(t, defaultValidation())

	var called bool
	handler := interceptor.Wrap(echoHandler(&called))

	payload := `{"name":"Test Project","description":"<script>alert('XSS')</script>"}`
	req := httptest.NewRequest("POST", "/api/projects", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.False(t, called, "handler must not run for rejected requests")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	// The response must not echo any part of the payload or name the rule.
	assert.NotContains(t, rec.Body.String(), "script")
	assert.NotContains(t, rec.Body.String(), "XSS")

	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "REQUEST_REJECTED", resp.Code)
	assert.NotEmpty(t, resp.RequestID)

	rejected := sink.byKind(domain.EventRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, domain.CategoryScriptSignature, rejected[0].Category)
	assert.Equal(t, "description", rejected[0].Field)
}

func TestInterceptor_RejectsInjectionInQuery(t *testing.T) {
	interceptor, _, _ := newTestInterceptor(t, defaultValidation())

	var called bool
	handler := interceptor.Wrap(echoHandler(&called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/projects?id=1%27%20OR%20%271%27%3D%271", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInterceptor_RejectsOversizedHeader(t *testing.T) {
	interceptor, _, _ := newTestInterceptor(t, defaultValidation())

	var called bool
	handler := interceptor.Wrap(echoHandler(&called))

	req := httptest.NewRequest("GET", "/api/projects", nil)
	req.Header.Set("X-Custom-Data", strings.Repeat("A", 5*1024))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Two different attack classes must be indistinguishable from the outside:
// same status, same code, no category leaked.
func TestInterceptor_RejectionResponsesAreUniform(t *testing.T) {
	interceptor, _, _ := newTestInterceptor(t, defaultValidation())
	handler := interceptor.Wrap(http.NotFoundHandler())

	sqli := httptest.NewRequest("GET", "/api/projects?id=1+UNION+SELECT+password+FROM+users", nil)
	oversized := httptest.NewRequest("GET", "/api/projects", nil)
	oversized.Header.Set("X-Big", strings.Repeat("B", 8*1024))

	decode := func(req *http.Request) (int, domain.ErrorResponse) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		var resp domain.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return rec.Code, resp
	}

	codeA, respA := decode(sqli)
	codeB, respB := decode(oversized)

	assert.Equal(t, codeA, codeB)
	assert.Equal(t, respA.Code, respB.Code)
	assert.Equal(t, respA.Message, respB.Message)
	assert.NotEqual(t, respA.RequestID, respB.RequestID)
}

func TestInterceptor_ForwardingHeaderLoggedNotBlocked(t *testing.T) {
	interceptor, sink, _ := newTestInterceptor(t, defaultValidation())

	var called bool
	handler := interceptor.Wrap(echoHandler(&called))

	req := httptest.NewRequest("GET", "/api/projects", nil)
	req.Header.Set("X-Forwarded-Host", "evil.example")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)

	flagged := sink.byKind(domain.EventFlagged)
	require.Len(t, flagged, 1)
	assert.Equal(t, "X-Forwarded-Host", flagged[0].Field)
	assert.NotEmpty(t, flagged[0].RequestID)
}

func TestInterceptor_ForwardingHeaderIgnoreMode(t *testing.T) {
	validation := defaultValidation()
	validation.ForwardingHeaders.Mode = config.ModeIgnore
	interceptor, sink, _ := newTestInterceptor(t, validation)

	handler := interceptor.Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/projects", nil)
	req.Header.Set("X-Real-Ip", "10.0.0.1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sink.byKind(domain.EventFlagged))
}

func TestInterceptor_PolicyModeBlocksFlaggedHeader(t *testing.T) {
	dir := t.TempDir()
	regoPath := filepath.Join(dir, "headers.rego")
	module := `package warden.headers

import rego.v1

default decision := {"action": "log", "reason": "routing header present"}

decision := {"action": "block", "reason": "forwarded host not allowed"} if {
	input.header == "X-Forwarded-Host"
}
`
	require.NoError(t, os.WriteFile(regoPath, []byte(module), 0o600))

	validation := defaultValidation()
	validation.ForwardingHeaders = config.ForwardingHeadersConfig{
		Mode:     config.ModePolicy,
		RegoPath: regoPath,
	}
	interceptor, sink, _ := newTestInterceptor(t, validation)

	var called bool
	handler := interceptor.Wrap(echoHandler(&called))

	blocked := httptest.NewRequest("GET", "/api/projects", nil)
	blocked.Header.Set("X-Forwarded-Host", "evil.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, blocked)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rejected := sink.byKind(domain.EventRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, domain.CategoryPolicyViolation, rejected[0].Category)

	// Other flagged headers fall back to the default log action.
	logged := httptest.NewRequest("GET", "/api/projects", nil)
	logged.Header.Set("X-Real-Ip", "10.0.0.1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, logged)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInterceptor_FailsClosedOnBodyReadError(t *testing.T) {
	interceptor, _, _ := newTestInterceptor(t, defaultValidation())

	var called bool
	handler := interceptor.Wrap(echoHandler(&called))

	req := httptest.NewRequest("POST", "/api/projects", errReader{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestMetrics_ObserveRecordsOutcomes(t *testing.T) {
	m := NewMetrics()

	m.Observe("GET", domain.Allow(), nil, 0)
	m.Observe("POST", domain.Reject(domain.CategoryScriptSignature, domain.ScopeBodyField, "description"), nil, 0)
	m.Observe("GET", domain.Allow(), []domain.Event{
		{Kind: domain.EventFlagged, Field: "X-Forwarded-Host"},
	}, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "reject")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejectionsTotal.WithLabelValues("script-signature", "body-field")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flaggedTotal.WithLabelValues("X-Forwarded-Host")))
}

func TestSlogSink_NeverPanicsOnPartialEvents(t *testing.T) {
	sink := NewSlogSink(nil)
	sink.Record(context.Background(), domain.Event{Kind: domain.EventFlagged, Field: "X-Real-Ip"})
	sink.Record(context.Background(), domain.Event{Kind: domain.EventRejected})
}
