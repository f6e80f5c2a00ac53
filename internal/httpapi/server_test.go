package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elementstore/objstore/internal/objstore"
	"github.com/elementstore/objstore/internal/objstore/storage/fsjson"
	"github.com/elementstore/objstore/internal/platform/logging"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := fsjson.New(t.TempDir())
	require.NoError(t, err)
	engine := objstore.New(store, objstore.WithLogger(logging.New("test", "error", "text")))
	return NewServer(engine, logging.New("test", "error", "text"), WithVersion("test"))
}

func newExportStoreForTest(t *testing.T) (*objstore.ExportStore, error) {
	t.Helper()
	return objstore.NewExportStore(t.TempDir())
}

func newTestServerWithExports(t *testing.T, exports *objstore.ExportStore) *Server {
	t.Helper()
	store, err := fsjson.New(t.TempDir())
	require.NoError(t, err)
	engine := objstore.New(store, objstore.WithLogger(logging.New("test", "error", "text")))
	return NewServer(engine, logging.New("test", "error", "text"), WithVersion("test"), WithExports(exports))
}

func doRequest(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthAndInfo(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	decodeBody(t, rec, &health)
	assert.Equal(t, "ok", health["status"])

	rec = doRequest(t, s, http.MethodGet, "/info", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTracingMiddlewarePropagatesTraceID(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", nil, map[string]string{"X-Trace-Id": "trace-abc"})
	assert.Equal(t, "trace-abc", rec.Header().Get("X-Trace-Id"))
}

func TestTracingMiddlewareMintsTraceIDWhenAbsent(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", nil, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodOptions, "/store/widget", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
