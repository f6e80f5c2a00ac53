package objstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportContentHashIsDeterministicAcrossExportedAt(t *testing.T) {
	e := newTestEngine(t)
	ctx := ctxUnenforced()
	_, err := e.SetObject(ctx, ClassMetaClass, Object{FieldID: "widget"})
	require.NoError(t, err)
	_, err = e.SetObject(ctx, "widget", Object{FieldID: "w1", "name": "a"})
	require.NoError(t, err)

	b1, err := e.Export(ctx)
	require.NoError(t, err)
	b2, err := e.Export(ctx)
	require.NoError(t, err)

	assert.Equal(t, b1.ID, b2.ID)
	assert.NotEmpty(t, b1.ExportedAt)
	assert.Len(t, b1.ID, 16)
}

func TestExportContentHashChangesWithData(t *testing.T) {
	e := newTestEngine(t)
	ctx := ctxUnenforced()
	_, err := e.SetObject(ctx, ClassMetaClass, Object{FieldID: "widget"})
	require.NoError(t, err)

	before, err := e.Export(ctx)
	require.NoError(t, err)

	_, err = e.SetObject(ctx, "widget", Object{FieldID: "w1", "name": "a"})
	require.NoError(t, err)

	after, err := e.Export(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, before.ID, after.ID)
}

func TestExportStoreSaveIsIdempotentByContentHash(t *testing.T) {
	store, err := NewExportStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	b := Bundle{ID: "abc123", ExportedAt: "2026-01-01T00:00:00Z", Version: 1}
	require.NoError(t, store.Save(ctx, b))
	require.NoError(t, store.Save(ctx, b))

	got, ok, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2026-01-01T00:00:00Z", got.ExportedAt)
}

func TestExportStoreListAndDelete(t *testing.T) {
	store, err := NewExportStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Bundle{ID: "first", ExportedAt: "2026-01-01T00:00:00Z"}))
	require.NoError(t, store.Save(ctx, Bundle{ID: "second", ExportedAt: "2026-02-01T00:00:00Z"}))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].ID)

	deleted, err := store.Delete(ctx, "first")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err := store.Get(ctx, "first")
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := store.Delete(ctx, "first")
	require.NoError(t, err)
	assert.False(t, missing)
}
