package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertClassThenGetAndDelete(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/class", map[string]any{"id": "widget"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/class/widget", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cd map[string]any
	decodeBody(t, rec, &cd)
	assert.Equal(t, "widget", cd["id"])

	rec = doRequest(t, s, http.MethodGet, "/class", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/class/widget", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/class/widget", nil, nil)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestUpsertClassRoutesPropBodyToPropMetaClass(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/class", map[string]any{"id": "book"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/class", map[string]any{
		"id": "book.title", "class_id": "@prop", "owner_class_id": "book",
		"key": "title", "data_type": "string", "required": true,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/class/book/props", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var props []map[string]any
	decodeBody(t, rec, &props)
	require.Len(t, props, 1)
	assert.Equal(t, "title", props[0]["key"])
}

func TestDeleteClassRefusesWhenPopulatedViaHTTP(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/class", map[string]any{"id": "widget"}, nil)
	doRequest(t, s, http.MethodPost, "/store/widget", map[string]any{"name": "a"}, nil)

	rec := doRequest(t, s, http.MethodDelete, "/class/widget", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
