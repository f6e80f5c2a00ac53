package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryFiltersBySimpleEquality(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/class", map[string]any{"id": "widget"}, nil)
	doRequest(t, s, http.MethodPost, "/store/widget", map[string]any{"name": "a", "color": "red"}, nil)
	doRequest(t, s, http.MethodPost, "/store/widget", map[string]any{"name": "b", "color": "blue"}, nil)

	rec := doRequest(t, s, http.MethodGet, "/query/widget?color=red", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var results []map[string]any
	decodeBody(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0]["name"])
}

func TestQueryIgnoresReservedControlParams(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/class", map[string]any{"id": "widget"}, nil)
	doRequest(t, s, http.MethodPost, "/store/widget", map[string]any{"name": "a"}, nil)
	doRequest(t, s, http.MethodPost, "/store/widget", map[string]any{"name": "b"}, nil)

	rec := doRequest(t, s, http.MethodGet, "/query/widget?_limit=1&_sort=name&_order=desc", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var results []map[string]any
	decodeBody(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0]["name"])
}

func TestListObjectsReturnsAllInClass(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/class", map[string]any{"id": "widget"}, nil)
	doRequest(t, s, http.MethodPost, "/store/widget", map[string]any{"name": "a"}, nil)

	rec := doRequest(t, s, http.MethodGet, "/store/widget", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var results []map[string]any
	decodeBody(t, rec, &results)
	assert.Len(t, results, 1)
}
