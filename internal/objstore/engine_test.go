package objstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elementstore/objstore/internal/apierror"
	"github.com/elementstore/objstore/internal/objstore/storage/fsjson"
	"github.com/elementstore/objstore/internal/platform/logging"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := fsjson.New(t.TempDir())
	require.NoError(t, err)
	return New(store, WithLogger(logging.New("test", "error", "text")))
}

func ctxAs(principal string) context.Context {
	return WithCapabilities(context.Background(), Capabilities{EnforceOwnership: true, Principal: principal})
}

func ctxUnenforced() context.Context {
	return WithCapabilities(context.Background(), Capabilities{EnforceOwnership: false, AllowCustomIDs: true})
}

// Scenario 1: create class + add prop + write instance.
func TestScenarioCreateClassAddPropWriteInstance(t *testing.T) {
	e := newTestEngine(t)
	ctx := ctxAs("u1")

	_, err := e.SetObject(ctx, ClassMetaClass, Object{FieldID: "book"})
	require.NoError(t, err)

	_, err = e.SetObject(ctx, PropMetaClass, Object{
		FieldID: "book.title", "owner_class_id": "book", "key": "title", "data_type": "string", "required": true,
	})
	require.NoError(t, err)

	result, err := e.SetObject(ctx, "book", Object{"title": "x"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ID())
	assert.Equal(t, "book", result.ClassID())
	assert.Equal(t, "x", result["title"])
	assert.Equal(t, "u1", result.OwnerID())
	assert.EqualValues(t, 1, result.Version())
	assert.NotEmpty(t, result["created_at"])
	assert.NotEmpty(t, result["updated_at"])

	_, err = e.SetObject(ctx, "book", Object{})
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.CodeValidationFailed, apiErr.Code)
	require.Len(t, apiErr.Fields, 1)
	assert.Contains(t, apiErr.Fields[0].Reason, "title is required")
}

// Scenario 2: inheritance overrides.
func TestScenarioInheritanceOverride(t *testing.T) {
	e := newTestEngine(t)
	ctx := ctxAs("u1")

	_, err := e.SetObject(ctx, ClassMetaClass, Object{FieldID: "animal"})
	require.NoError(t, err)
	_, err = e.SetObject(ctx, PropMetaClass, Object{
		FieldID: "animal.sound", "owner_class_id": "animal", "key": "sound", "data_type": "string", "default_value": "noise",
	})
	require.NoError(t, err)

	_, err = e.SetObject(ctx, ClassMetaClass, Object{FieldID: "dog", "extends_id": "animal"})
	require.NoError(t, err)
	_, err = e.SetObject(ctx, PropMetaClass, Object{
		FieldID: "dog.sound", "owner_class_id": "dog", "key": "sound", "data_type": "string", "default_value": "bark",
	})
	require.NoError(t, err)

	result, err := e.SetObject(ctx, "dog", Object{})
	require.NoError(t, err)
	assert.Equal(t, "bark", result["sound"])

	props, err := e.GetClassProps(ctx, "dog")
	require.NoError(t, err)
	count := 0
	for _, p := range props {
		if p.Key == "sound" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

// Scenario 3: relation existence.
func TestScenarioRelationExistence(t *testing.T) {
	e := newTestEngine(t)
	ctx := ctxAs("u1")

	_, err := e.SetObject(ctx, ClassMetaClass, Object{FieldID: "customer"})
	require.NoError(t, err)
	_, err = e.SetObject(ctx, ClassMetaClass, Object{FieldID: "invoice"})
	require.NoError(t, err)
	_, err = e.SetObject(ctx, PropMetaClass, Object{
		FieldID: "invoice.customer_id", "owner_class_id": "invoice", "key": "customer_id",
		"data_type": "relation", "object_class_id": []any{"customer"},
	})
	require.NoError(t, err)

	_, err = e.SetObject(ctx, "invoice", Object{"customer_id": "missing"})
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	require.Len(t, apiErr.Fields, 1)
	assert.Equal(t, "relation_target_missing", apiErr.Fields[0].Reason)

	cust, err := e.SetObject(ctx, "customer", Object{"name": "acme"})
	require.NoError(t, err)

	_, err = e.SetObject(ctx, "invoice", Object{"customer_id": cust.ID()})
	require.NoError(t, err)
}

// Scenario 4: ownership isolation.
func TestScenarioOwnershipIsolation(t *testing.T) {
	e := newTestEngine(t)
	setupCtx := ctxUnenforced()

	_, err := e.SetObject(setupCtx, ClassMetaClass, Object{FieldID: "customer"})
	require.NoError(t, err)

	u1 := ctxAs("u1")
	u2 := ctxAs("u2")

	created, err := e.SetObject(u1, "customer", Object{"name": "ada"})
	require.NoError(t, err)

	_, ok, err := e.GetObject(u2, "customer", created.ID())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.SetObject(u2, "customer", Object{FieldID: created.ID(), "name": "eve"})
	require.Error(t, err)
	apiErr, ok2 := apierror.As(err)
	require.True(t, ok2)
	assert.Equal(t, apierror.CodeForbidden, apiErr.Code)

	list, err := e.Query(u2, "customer", QueryOptions{})
	require.NoError(t, err)
	for _, obj := range list {
		assert.NotEqual(t, created.ID(), obj.ID())
	}
}

// Scenario 6: cascade delete with on_orphan=nullify.
func TestScenarioCascadeNullifyOnOrphan(t *testing.T) {
	e := newTestEngine(t)
	ctx := ctxUnenforced()

	_, err := e.SetObject(ctx, ClassMetaClass, Object{FieldID: "customer"})
	require.NoError(t, err)
	_, err = e.SetObject(ctx, ClassMetaClass, Object{FieldID: "order"})
	require.NoError(t, err)
	_, err = e.SetObject(ctx, PropMetaClass, Object{
		FieldID: "order.customer_id", "owner_class_id": "order", "key": "customer_id",
		"data_type": "relation", "object_class_id": []any{"customer"}, "on_orphan": "nullify",
	})
	require.NoError(t, err)

	cust, err := e.SetObject(ctx, "customer", Object{FieldID: "cust-1"})
	require.NoError(t, err)

	order1, err := e.SetObject(ctx, "order", Object{"customer_id": cust.ID()})
	require.NoError(t, err)
	order2, err := e.SetObject(ctx, "order", Object{"customer_id": cust.ID()})
	require.NoError(t, err)

	deleted, err := e.DeleteObject(ctx, "customer", cust.ID())
	require.NoError(t, err)
	assert.True(t, deleted)

	got1, _, err := e.GetObject(ctx, "order", order1.ID())
	require.NoError(t, err)
	assert.Nil(t, got1["customer_id"])
	assert.EqualValues(t, order1.Version()+1, got1.Version())

	got2, _, err := e.GetObject(ctx, "order", order2.ID())
	require.NoError(t, err)
	assert.Nil(t, got2["customer_id"])
}

func TestDeleteThenGetReturnsNotFound(t *testing.T) {
	e := newTestEngine(t)
	ctx := ctxUnenforced()
	_, err := e.SetObject(ctx, ClassMetaClass, Object{FieldID: "widget"})
	require.NoError(t, err)

	created, err := e.SetObject(ctx, "widget", Object{"name": "a"})
	require.NoError(t, err)

	deleted, err := e.DeleteObject(ctx, "widget", created.ID())
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err := e.GetObject(ctx, "widget", created.ID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetObjectPartialUpdateNeverErasesFields(t *testing.T) {
	e := newTestEngine(t)
	ctx := ctxUnenforced()
	_, err := e.SetObject(ctx, ClassMetaClass, Object{FieldID: "widget"})
	require.NoError(t, err)

	created, err := e.SetObject(ctx, "widget", Object{"name": "a", "size": "large"})
	require.NoError(t, err)

	updated, err := e.SetObject(ctx, "widget", Object{FieldID: created.ID(), "name": "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", updated["name"])
	assert.Equal(t, "large", updated["size"])
	assert.EqualValues(t, created.Version()+1, updated.Version())
}

func TestDeleteClassRefusesWhenPopulated(t *testing.T) {
	e := newTestEngine(t)
	ctx := ctxUnenforced()
	_, err := e.SetObject(ctx, ClassMetaClass, Object{FieldID: "widget"})
	require.NoError(t, err)
	_, err = e.SetObject(ctx, "widget", Object{"name": "a"})
	require.NoError(t, err)

	err = e.DeleteClass(ctx, "widget")
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.CodeConflict, apiErr.Code)
}

func TestResetClearsNonMetaClassesOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := ctxUnenforced()
	_, err := e.SetObject(ctx, ClassMetaClass, Object{FieldID: "widget"})
	require.NoError(t, err)
	_, err = e.SetObject(ctx, "widget", Object{"name": "a"})
	require.NoError(t, err)

	cleared, err := e.Reset(ctx)
	require.NoError(t, err)
	assert.Contains(t, cleared, "widget")

	classes, err := e.ListClasses(ctx)
	require.NoError(t, err)
	assert.Empty(t, classes)
}

// Ties on the sort field must break by id ascending regardless of sortDir
// (§4.3: "Ties break by id ascending for determinism" is unconditional).
func TestQueryDescSortStillBreaksTiesByIDAscending(t *testing.T) {
	e := newTestEngine(t)
	ctx := ctxUnenforced()
	_, err := e.SetObject(ctx, ClassMetaClass, Object{FieldID: "widget"})
	require.NoError(t, err)

	_, err = e.SetObject(ctx, "widget", Object{FieldID: "2", "color": "red"})
	require.NoError(t, err)
	_, err = e.SetObject(ctx, "widget", Object{FieldID: "1", "color": "red"})
	require.NoError(t, err)

	list, err := e.Query(ctx, "widget", QueryOptions{Sort: "color", SortDir: "desc"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID())
	assert.Equal(t, "2", list[1].ID())
}

func TestRunTestsReportsAllPassing(t *testing.T) {
	e := newTestEngine(t)
	report := e.RunTests(context.Background())
	assert.Zero(t, report.Failed)
	assert.Positive(t, report.Passed)
}
