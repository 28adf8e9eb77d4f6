package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with no loader env vars set.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, name := range []string{"MONGO_URI", "DATABASE_NAME", "ZIP_PATH"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("DOCLOADER_MONGO_URI", "mongodb://localhost:27017")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StoreMongo, cfg.Store)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultQueueDepth, cfg.QueueDepth)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
	assert.Equal(t, []string{"factura_num", "fecha_hora"}, cfg.IndexFields)
	assert.False(t, cfg.Dedupe)
}

func TestLoad_LegacyEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MONGO_URI", "mongodb://legacy:27017")
	t.Setenv("DATABASE_NAME", "Ventas")
	t.Setenv("ZIP_PATH", "/data/facturas.zip")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://legacy:27017", cfg.MongoURI)
	assert.Equal(t, "Ventas", cfg.Database)
	assert.Equal(t, "/data/facturas.zip", cfg.ZipPath)
}

func TestLoad_PrefixedEnvWins(t *testing.T) {
	isolate(t)
	t.Setenv("MONGO_URI", "mongodb://legacy:27017")
	t.Setenv("DOCLOADER_MONGO_URI", "mongodb://new:27017")
	t.Setenv("DOCLOADER_WORKERS", "8")
	t.Setenv("DOCLOADER_RETRY_DELAY", "2s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://new:27017", cfg.MongoURI)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	content := "MONGO_URI=mongodb://dotenv:27017\nZIP_PATH=facturas.zip\nDATABASE_NAME=Facturas2024\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://dotenv:27017", cfg.MongoURI)
	assert.Equal(t, "facturas.zip", cfg.ZipPath)
	assert.Equal(t, "Facturas2024", cfg.Database)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "docloader.yaml")
	content := `
store: badger
badger_path: /tmp/docloader
batch_size: 500
workers: 4
index_fields: [cliente, fecha_hora]
dedupe: true
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreBadger, cfg.Store)
	assert.Equal(t, "/tmp/docloader", cfg.BadgerPath)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"cliente", "fecha_hora"}, cfg.IndexFields)
	assert.True(t, cfg.Dedupe)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Store:      StoreMongo,
			MongoURI:   "mongodb://localhost",
			BatchSize:  1,
			Workers:    1,
			QueueDepth: 1,
			MaxRetries: 1,
			LogLevel:   "info",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(c *Config) {}, nil},
		{"unknown store", func(c *Config) { c.Store = "postgres" }, ErrInvalidStore},
		{"mongo without uri", func(c *Config) { c.MongoURI = "" }, ErrMissingMongoURI},
		{"badger without path", func(c *Config) { c.Store = StoreBadger }, ErrMissingBadgerPath},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"zero workers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"zero queue", func(c *Config) { c.QueueDepth = 0 }, ErrInvalidQueueDepth},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, ErrInvalidRetries},
		{"negative delay", func(c *Config) { c.RetryDelay = -time.Second }, ErrInvalidRetryDelay},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, ErrInvalidLogLevel},
		{"warning level", func(c *Config) { c.LogLevel = "WARNING" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRead_SkipsValidation(t *testing.T) {
	isolate(t)

	_, err := Load("")
	assert.ErrorIs(t, err, ErrMissingMongoURI)

	cfg, err := Read("")
	require.NoError(t, err)
	assert.Empty(t, cfg.MongoURI)

	cfg.MongoURI = "mongodb://flag:27017"
	assert.NoError(t, cfg.Validate())
}
