package docloader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/docloader/archive"
	"github.com/poiesic/docloader/config"
	"github.com/poiesic/docloader/core"
	"github.com/poiesic/docloader/storage"
	"github.com/poiesic/docloader/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixture = []archive.FixtureEntry{
	{Name: "Facturas A/", Data: ""},
	{Name: "Facturas A/1.json", Data: `{"factura_num":"A-1","total":10.5}`},
	{Name: "Facturas A/2.json", Data: `{"factura_num":"A-2","total":3}`},
	{Name: "Facturas A/3.json", Data: `{"factura_num":"A-3","total":7}`},
	{Name: "B/1.json", Data: `{"cliente":"x"}`},
	{Name: "B/bad.json", Data: `{"cliente":`},
	{Name: "B/2.json", Data: `{"cliente":"y"}`},
	{Name: "B/readme.txt", Data: "not a record"},
}

func testConfig(t *testing.T, workers int) *config.Config {
	t.Helper()
	return &config.Config{
		Store:       config.StoreBadger,
		BadgerPath:  filepath.Join(t.TempDir(), "db"),
		BatchSize:   2,
		Workers:     workers,
		QueueDepth:  config.DefaultQueueDepth,
		MaxRetries:  1,
		IndexFields: []string{"factura_num", "fecha_hora"},
		LogLevel:    "info",
	}
}

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facturas.zip")
	require.NoError(t, archive.WriteZip(path, fixture))
	return path
}

func TestNewLoader(t *testing.T) {
	t.Run("requires config", func(t *testing.T) {
		l, err := NewLoader(context.Background(), nil)
		assert.ErrorIs(t, err, ErrConfigRequired)
		assert.Nil(t, l)
	})

	t.Run("opens badger store", func(t *testing.T) {
		l, err := NewLoader(context.Background(), testConfig(t, 1))
		require.NoError(t, err)
		require.NotNil(t, l.Store())
		assert.NoError(t, l.Close())
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		cfg := testConfig(t, 1)
		cfg.BadgerPath = tmpFile
		l, err := NewLoader(context.Background(), cfg)
		assert.Error(t, err)
		assert.Nil(t, l)
	})

	t.Run("unknown store", func(t *testing.T) {
		cfg := testConfig(t, 1)
		cfg.Store = "sqlite"
		_, err := NewLoader(context.Background(), cfg)
		assert.ErrorIs(t, err, config.ErrInvalidStore)
	})

	t.Run("injected store is not closed", func(t *testing.T) {
		store, err := badger.NewMemoryStore()
		require.NoError(t, err)
		defer store.Close()

		l, err := NewLoader(context.Background(), testConfig(t, 1), WithStore(store))
		require.NoError(t, err)
		require.NoError(t, l.Close())

		_, err = store.CountDocuments(context.Background(), "a")
		assert.NoError(t, err)
	})
}

func TestLoader_Load(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(map[int]string{1: "sequential", 4: "pool"}[workers], func(t *testing.T) {
			ctx := context.Background()
			var progress bytes.Buffer

			l, err := NewLoader(ctx, testConfig(t, workers), WithProgress(&progress, 1))
			require.NoError(t, err)
			defer l.Close()

			summary, err := l.Load(ctx, writeFixture(t))
			require.NoError(t, err)

			assert.Equal(t, map[string]int{"facturas_a": 3, "b": 2}, summary.Loaded())
			assert.Equal(t, 1, summary.DecodeErrors)
			assert.Equal(t, 1, summary.EntriesSkipped)
			assert.False(t, summary.Interrupted)
			assert.Empty(t, summary.Failed())

			a := summary.Destination("facturas_a")
			require.NotNil(t, a)
			assert.Equal(t, core.StateDone, a.State)
			assert.Equal(t, 2, a.Batches)
			assert.Len(t, a.IndexesBuilt, 4)

			b := summary.Destination("b")
			require.NotNil(t, b)
			assert.Len(t, b.IndexesBuilt, 3)

			count, err := l.Store().CountDocuments(ctx, "facturas_a")
			require.NoError(t, err)
			assert.EqualValues(t, 3, count)

			doc, err := l.Store().SampleDocument(ctx, "facturas_a")
			require.NoError(t, err)
			require.NotNil(t, doc)
			folder, _ := doc.Get("_source_folder")
			assert.Equal(t, "Facturas A", folder.String())

			assert.Contains(t, progress.String(), "5/6")
		})
	}
}

func TestLoader_LoadDedupe(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, 1)
	cfg.Dedupe = true

	l, err := NewLoader(ctx, cfg)
	require.NoError(t, err)
	defer l.Close()

	path := writeFixture(t)
	first, err := l.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 5, first.TotalLoaded())

	second, err := l.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalLoaded())
	assert.Equal(t, 5, second.TotalRejected())

	count, err := l.Store().CountDocuments(ctx, "b")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestLoader_LoadUnreadableArchive(t *testing.T) {
	ctx := context.Background()
	l, err := NewLoader(ctx, testConfig(t, 1))
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Load(ctx, filepath.Join(t.TempDir(), "missing.zip"))
	assert.ErrorIs(t, err, core.ErrArchiveUnreadable)
}

func TestLoader_LoadArchiveWithoutRecords(t *testing.T) {
	ctx := context.Background()
	l, err := NewLoader(ctx, testConfig(t, 1))
	require.NoError(t, err)
	defer l.Close()

	path := filepath.Join(t.TempDir(), "empty.zip")
	require.NoError(t, archive.WriteZip(path, []archive.FixtureEntry{
		{Name: "Facturas/", Data: ""},
		{Name: "Facturas/readme.txt", Data: "no records here"},
	}))

	summary, err := l.Load(ctx, path)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, core.ErrArchiveUnreadable)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestLoader_IndexOnly(t *testing.T) {
	ctx := context.Background()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	docs := []*core.Document{
		core.DocumentOf("_source_file", "x/1.json", "_source_folder", "x", "fecha_hora", "2024-01-01"),
		core.DocumentOf("_source_file", "x/2.json", "_source_folder", "x", "fecha_hora", "2024-01-02"),
	}
	_, err = store.BulkWrite(ctx, "x", docs, storage.BulkLoadOptions())
	require.NoError(t, err)

	l, err := NewLoader(ctx, testConfig(t, 1), WithStore(store))
	require.NoError(t, err)

	summary, err := l.IndexOnly(ctx)
	require.NoError(t, err)

	x := summary.Destination("x")
	require.NotNil(t, x)
	assert.Equal(t, core.StateDone, x.State)
	assert.Contains(t, x.IndexesBuilt, "fecha_hora_1")

	indexes, err := store.ListIndexes(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, indexes, 4)
}
