package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for loader settings.
const envPrefix = "DOCLOADER"

// dotEnvFile is read from the working directory when no config file is given.
const dotEnvFile = ".env"

// legacyEnv maps keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"mongo_uri":     "MONGO_URI",
	"database_name": "DATABASE_NAME",
	"zip_path":      "ZIP_PATH",
}

// Load loads configuration from defaults, a config file, and env vars, and
// validates the result.
// If configPath is non-empty it names the config file; yaml, toml, json and
// .env files are accepted. Otherwise ./.env is read when present.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Read is Load without validation, for callers that apply their own
// overrides before calling Validate.
func Read(configPath string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(key), legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if configPath == "" {
		if _, err := os.Stat(dotEnvFile); err == nil {
			configPath = dotEnvFile
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if isDotEnv(configPath) {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func isDotEnv(path string) bool {
	base := filepath.Base(path)
	return base == dotEnvFile || filepath.Ext(base) == dotEnvFile
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("store", DefaultStore)
	v.SetDefault("mongo_uri", "")
	v.SetDefault("database_name", DefaultDatabase)
	v.SetDefault("zip_path", "")
	v.SetDefault("badger_path", "")
	v.SetDefault("batch_size", DefaultBatchSize)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("queue_depth", DefaultQueueDepth)
	v.SetDefault("max_retries", DefaultMaxRetries)
	v.SetDefault("retry_delay", DefaultRetryDelay)
	v.SetDefault("index_fields", []string{"factura_num", "fecha_hora"})
	v.SetDefault("dedupe", false)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("metrics_addr", "")
}
