package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/docloader/core"
	"github.com/poiesic/docloader/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...StoreOption) *DocumentStore {
	t.Helper()
	store, err := NewMemoryStore(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func invoice(file string, num int) *core.Document {
	return core.DocumentOf(
		"factura_num", num,
		core.FieldSourceFile, file,
		core.FieldSourceFolder, "2024",
	)
}

func TestBulkWrite_AssignsIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []*core.Document{invoice("2024/a.json", 1), invoice("2024/b.json", 2)}
	result, err := store.BulkWrite(ctx, "2024", docs, storage.BulkLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Accepted)
	assert.Zero(t, result.Rejected)

	for _, doc := range docs {
		id, ok := doc.Get(core.FieldID)
		require.True(t, ok)
		assert.Equal(t, core.KindInt, id.Kind())
	}

	count, err := store.CountDocuments(ctx, "2024")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestBulkWrite_DuplicateKeyIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := core.DocumentOf(core.FieldID, "x", "n", 1)
	_, err := store.BulkWrite(ctx, "dest", []*core.Document{first}, storage.BulkLoadOptions())
	require.NoError(t, err)

	docs := []*core.Document{
		core.DocumentOf(core.FieldID, "a", "n", 2),
		core.DocumentOf(core.FieldID, "x", "n", 3),
		core.DocumentOf(core.FieldID, "b", "n", 4),
		core.DocumentOf(core.FieldID, "a", "n", 5),
	}
	result, err := store.BulkWrite(ctx, "dest", docs, storage.BulkLoadOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPartialWrite))

	var bwe *storage.BulkWriteError
	require.True(t, errors.As(err, &bwe))
	assert.Equal(t, 2, bwe.Result.Accepted)
	assert.Equal(t, 2, bwe.Result.Rejected)
	require.Len(t, bwe.Result.Errors, 2)
	assert.Equal(t, 1, bwe.Result.Errors[0].Index)
	assert.Equal(t, storage.CodeDuplicateKey, bwe.Result.Errors[0].Code)
	assert.Equal(t, 3, bwe.Result.Errors[1].Index)
	assert.Equal(t, result.Accepted, bwe.Result.Accepted)

	count, err := store.CountDocuments(ctx, "dest")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestBulkWrite_ResubmitKeepsGeneratedIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []*core.Document{invoice("2024/a.json", 1), invoice("2024/b.json", 2)}
	_, err := store.BulkWrite(ctx, "2024", docs, storage.BulkLoadOptions())
	require.NoError(t, err)

	result, err := store.BulkWrite(ctx, "2024", docs, storage.BulkLoadOptions())
	require.ErrorIs(t, err, core.ErrPartialWrite)
	assert.Zero(t, result.Accepted)
	assert.Equal(t, 2, result.Rejected)
	for _, e := range result.Errors {
		assert.Equal(t, storage.CodeDuplicateKey, e.Code)
	}

	count, err := store.CountDocuments(ctx, "2024")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "resubmitted documents are rejected, not stored twice")
}

func TestBulkWrite_OrderedStopsAtFirstFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []*core.Document{
		core.DocumentOf(core.FieldID, 1),
		core.DocumentOf(core.FieldID, 1),
		core.DocumentOf(core.FieldID, 2),
	}
	opts := storage.BulkLoadOptions()
	opts.Ordered = true

	_, err := store.BulkWrite(ctx, "dest", docs, opts)
	var bwe *storage.BulkWriteError
	require.ErrorAs(t, err, &bwe)
	assert.Equal(t, 1, bwe.Result.Accepted)
	assert.Equal(t, 1, bwe.Result.Rejected)
}

func TestBulkWrite_InvalidDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []*core.Document{
		nil,
		core.DocumentOf(core.FieldID, []any{1, 2}),
		core.DocumentOf("ok", true),
	}
	_, err := store.BulkWrite(ctx, "dest", docs, storage.BulkLoadOptions())

	var bwe *storage.BulkWriteError
	require.ErrorAs(t, err, &bwe)
	assert.Equal(t, 1, bwe.Result.Accepted)
	require.Len(t, bwe.Result.Errors, 2)
	for _, we := range bwe.Result.Errors {
		assert.Equal(t, storage.CodeInvalidDocument, we.Code)
	}
}

func TestBulkWrite_Validator(t *testing.T) {
	requireNum := func(destination string, doc *core.Document) error {
		if !doc.Has("factura_num") {
			return errors.New("factura_num is required")
		}
		return nil
	}
	store := newTestStore(t, WithValidator(requireNum))
	ctx := context.Background()

	docs := func() []*core.Document {
		return []*core.Document{invoice("2024/a.json", 1), core.DocumentOf("other", 1)}
	}

	t.Run("validation enforced", func(t *testing.T) {
		opts := storage.BulkLoadOptions()
		opts.BypassValidation = false
		_, err := store.BulkWrite(ctx, "strict", docs(), opts)
		var bwe *storage.BulkWriteError
		require.ErrorAs(t, err, &bwe)
		require.Len(t, bwe.Result.Errors, 1)
		assert.Equal(t, storage.CodeDocumentValidation, bwe.Result.Errors[0].Code)
	})

	t.Run("validation bypassed", func(t *testing.T) {
		result, err := store.BulkWrite(ctx, "loose", docs(), storage.BulkLoadOptions())
		require.NoError(t, err)
		assert.Equal(t, 2, result.Accepted)
	})
}

func TestBulkWrite_Closed(t *testing.T) {
	store, err := NewMemoryStore()
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.BulkWrite(context.Background(), "dest", []*core.Document{core.DocumentOf("a", 1)}, storage.BulkLoadOptions())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestCreateIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.BulkWrite(ctx, "2024", []*core.Document{
		invoice("2024/a.json", 1),
		invoice("2024/b.json", 2),
	}, storage.BulkLoadOptions())
	require.NoError(t, err)

	spec := core.NewIndexSpec(core.FieldSourceFolder, core.FieldSourceFile)
	require.NoError(t, store.CreateIndex(ctx, "2024", spec))

	n, err := store.countIndexEntries("2024", spec.Name)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, store.CreateIndex(ctx, "2024", spec))
		specs, err := store.ListIndexes(ctx, "2024")
		require.NoError(t, err)
		require.Len(t, specs, 1)
		assert.True(t, specs[0].Equal(spec))
	})

	t.Run("conflicting fields", func(t *testing.T) {
		conflict := core.IndexSpec{Name: spec.Name, Fields: []string{"other"}}
		assert.ErrorIs(t, store.CreateIndex(ctx, "2024", conflict), storage.ErrInvalidIndex)
	})

	t.Run("maintained by later writes", func(t *testing.T) {
		_, err := store.BulkWrite(ctx, "2024", []*core.Document{invoice("2024/c.json", 3)}, storage.BulkLoadOptions())
		require.NoError(t, err)
		n, err := store.countIndexEntries("2024", spec.Name)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("invalid spec", func(t *testing.T) {
		assert.ErrorIs(t, store.CreateIndex(ctx, "2024", core.IndexSpec{Name: "empty"}), storage.ErrInvalidIndex)
	})
}

func TestSampleDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc, err := store.SampleDocument(ctx, "empty")
	require.NoError(t, err)
	assert.Nil(t, doc)

	_, err = store.BulkWrite(ctx, "2024", []*core.Document{invoice("2024/a.json", 7)}, storage.BulkLoadOptions())
	require.NoError(t, err)

	doc, err = store.SampleDocument(ctx, "2024")
	require.NoError(t, err)
	require.NotNil(t, doc)
	num, ok := doc.Get("factura_num")
	require.True(t, ok)
	assert.Equal(t, core.Int(7), num)
	assert.Equal(t, []string{"factura_num", core.FieldSourceFile, core.FieldSourceFolder, core.FieldID}, doc.Keys())
}

func TestListDestinations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, dest := range []string{"b", "a", "a_b"} {
		_, err := store.BulkWrite(ctx, dest, []*core.Document{core.DocumentOf("x", 1)}, storage.BulkLoadOptions())
		require.NoError(t, err)
	}

	names, err := store.ListDestinations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a_b", "b"}, names)

	count, err := store.CountDocuments(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
