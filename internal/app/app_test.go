package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-proxy/warden/pkg/storage"
)

func newTestApp() http.Handler {
	return New(storage.NewMemoryProjectStore(), nil).Handler()
}

func TestApp_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestApp().ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestApp_CreateListGetDelete(t *testing.T) {
	handler := newTestApp()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/projects",
		strings.NewReader(`{"name":"Test Project","description":"A test project"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created storage.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/projects", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.ID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/projects/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/projects/"+created.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/projects/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApp_CreateRequiresName(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestApp().ServeHTTP(rec, httptest.NewRequest("POST", "/api/projects",
		strings.NewReader(`{"description":"nameless"}`)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestApp_CreateRejectsBadJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestApp().ServeHTTP(rec, httptest.NewRequest("POST", "/api/projects",
		strings.NewReader(`{"name":`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
