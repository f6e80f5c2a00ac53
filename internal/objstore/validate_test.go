package objstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceAndValidateRequiredField(t *testing.T) {
	props := map[string]PropDef{
		"title": {Key: "title", DataType: TypeString, Required: true},
	}
	_, errs := coerceAndValidate(props, Object{})
	require.Len(t, errs, 1)
	assert.Equal(t, "title", errs[0].Field)
}

func TestCoerceAndValidateStringLength(t *testing.T) {
	maxLen := 3
	props := map[string]PropDef{
		"code": {Key: "code", DataType: TypeString, Options: PropOptions{MaxLength: &maxLen}},
	}
	_, errs := coerceAndValidate(props, Object{"code": "toolong"})
	require.Len(t, errs, 1)
}

func TestCoerceAndValidateIntegerRange(t *testing.T) {
	min, max := 1.0, 10.0
	props := map[string]PropDef{
		"qty": {Key: "qty", DataType: TypeInteger, Options: PropOptions{Min: &min, Max: &max}},
	}
	out, errs := coerceAndValidate(props, Object{"qty": float64(5)})
	require.Empty(t, errs)
	assert.EqualValues(t, 5, out["qty"])

	_, errs = coerceAndValidate(props, Object{"qty": float64(99)})
	require.Len(t, errs, 1)
}

func TestCoerceAndValidateArrayAppliesScalarRulePerElement(t *testing.T) {
	props := map[string]PropDef{
		"tags": {Key: "tags", DataType: TypeString, IsArray: true},
	}
	out, errs := coerceAndValidate(props, Object{"tags": []any{"a", "b"}})
	require.Empty(t, errs)
	assert.Equal(t, []any{"a", "b"}, out["tags"])

	_, errs = coerceAndValidate(props, Object{"tags": []any{"a", 5}})
	assert.Empty(t, errs) // integers coerce to strings cleanly
}

func TestCoerceAndValidateEnum(t *testing.T) {
	props := map[string]PropDef{
		"status": {Key: "status", DataType: TypeString, Options: PropOptions{Values: []any{"open", "closed"}}},
	}
	_, errs := coerceAndValidate(props, Object{"status": "pending"})
	require.Len(t, errs, 1)

	_, errs = coerceAndValidate(props, Object{"status": "open"})
	assert.Empty(t, errs)
}

func TestCoerceAndValidateEmailValidator(t *testing.T) {
	props := map[string]PropDef{
		"email": {Key: "email", DataType: TypeString, Validators: []string{"email"}},
	}
	_, errs := coerceAndValidate(props, Object{"email": "not-an-email"})
	require.Len(t, errs, 1)

	_, errs = coerceAndValidate(props, Object{"email": "ada@example.com"})
	assert.Empty(t, errs)
}

func TestCoerceAndValidateRelationAcceptsIDOrList(t *testing.T) {
	props := map[string]PropDef{
		"customer_id": {Key: "customer_id", DataType: TypeRelation},
	}
	out, errs := coerceAndValidate(props, Object{"customer_id": "cust-1"})
	require.Empty(t, errs)
	assert.Equal(t, "cust-1", out["customer_id"])

	out, errs = coerceAndValidate(props, Object{"customer_id": []any{"cust-1", "cust-2"}})
	require.Empty(t, errs)
	assert.Equal(t, []any{"cust-1", "cust-2"}, out["customer_id"])
}

func TestCoerceToBoolAcceptsCommonRepresentations(t *testing.T) {
	for _, v := range []any{true, "true", "1", float64(1)} {
		b, ok := coerceToBool(v)
		require.True(t, ok, "%v", v)
		assert.True(t, b)
	}
	_, ok := coerceToBool("maybe")
	assert.False(t, ok)
}

func TestRunValidatorDateRange(t *testing.T) {
	reason, ok := runValidator("date_range", "2026-01-01T00:00:00Z/2026-02-01T00:00:00Z")
	assert.True(t, ok, reason)

	_, ok = runValidator("date_range", "2026-02-01T00:00:00Z/2026-01-01T00:00:00Z")
	assert.False(t, ok)
}
