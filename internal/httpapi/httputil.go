package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/elementstore/objstore/internal/apierror"
	"github.com/elementstore/objstore/internal/objstore"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err onto the {error, details?} shape (§6) at its
// apierror-derived HTTP status, defaulting to 500 for unrecognized errors.
func writeError(w http.ResponseWriter, err error) {
	status := apierror.HTTPStatus(err)
	body := map[string]any{"error": err.Error()}
	if apiErr, ok := apierror.As(err); ok {
		body["error"] = apiErr.Message
		if len(apiErr.Fields) > 0 {
			body["details"] = apiErr.Fields
		}
	}
	writeJSON(w, status, body)
}

// decodeJSON decodes r's body into v, writing a validation_failed response
// and returning false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apierror.ValidationFailed(apierror.FieldError{Field: "body", Reason: "invalid JSON payload"}))
		return false
	}
	return true
}

func queryString(r *http.Request, key, defaultVal string) string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// capabilitiesFromRequest derives per-request Capabilities from the headers
// the core consumes (§6): X-User-Id, X-Disable-Ownership, X-Allow-Custom-Ids.
func capabilitiesFromRequest(r *http.Request) objstore.Capabilities {
	c := objstore.DefaultCapabilities()
	c.Principal = r.Header.Get("X-User-Id")
	if truthy(r.Header.Get("X-Disable-Ownership")) {
		c.EnforceOwnership = false
	}
	if truthy(r.Header.Get("X-Allow-Custom-Ids")) {
		c.AllowCustomIDs = true
	}
	return c
}

func truthy(s string) bool {
	switch s {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// originConnectionIDFromRequest extracts the echo-suppression hint header.
func originConnectionIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-WS-Connection-Id")
}

func notFoundErr(class, id string) error {
	return apierror.NotFound(class, id)
}
