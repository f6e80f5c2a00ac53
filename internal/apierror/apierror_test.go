package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundHTTPStatus(t *testing.T) {
	err := NotFound("customer", "abc")
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
	assert.Contains(t, err.Error(), "customer/abc")
}

func TestValidationFailedCarriesFields(t *testing.T) {
	err := ValidationFailed(FieldError{Field: "title", Reason: "title is required"})
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
	require.Len(t, err.Fields, 1)
	assert.Equal(t, "title", err.Fields[0].Field)
}

func TestCycleDetectedMessage(t *testing.T) {
	err := CycleDetected("dog")
	assert.Equal(t, CodeCycleDetected, err.Code)
	assert.Contains(t, err.Error(), "dog")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeIOError, "write failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestAsUnwrapsPlainErrors(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)

	apiErr, ok := As(Forbidden("nope"))
	require.True(t, ok)
	assert.Equal(t, CodeForbidden, apiErr.Code)
}

func TestHTTPStatusDefaultsTo500(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
