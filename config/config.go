// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads loader settings from defaults, an optional config
// file or .env file, and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMongo  = "mongo"
	StoreBadger = "badger"
)

// Defaults.
const (
	DefaultStore      = StoreMongo
	DefaultDatabase   = "Facturas"
	DefaultBatchSize  = 8000
	DefaultWorkers    = 1
	DefaultQueueDepth = 2
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultLogLevel   = "info"
)

var (
	ErrInvalidStore      = errors.New("store must be mongo or badger")
	ErrMissingMongoURI   = errors.New("mongo_uri is required for the mongo store")
	ErrMissingBadgerPath = errors.New("badger_path is required for the badger store")
	ErrInvalidBatchSize  = errors.New("batch_size must be greater than 0")
	ErrInvalidWorkers    = errors.New("workers must be greater than 0")
	ErrInvalidQueueDepth = errors.New("queue_depth must be greater than 0")
	ErrInvalidRetries    = errors.New("max_retries must be greater than 0")
	ErrInvalidRetryDelay = errors.New("retry_delay cannot be negative")
	ErrInvalidLogLevel   = errors.New("invalid log_level")
)

// Config holds every loader setting.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Store       string        `mapstructure:"store"`
	MongoURI    string        `mapstructure:"mongo_uri"`
	Database    string        `mapstructure:"database_name"`
	ZipPath     string        `mapstructure:"zip_path"`
	BadgerPath  string        `mapstructure:"badger_path"`
	BatchSize   int           `mapstructure:"batch_size"`
	Workers     int           `mapstructure:"workers"`
	QueueDepth  int           `mapstructure:"queue_depth"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	IndexFields []string      `mapstructure:"index_fields"`
	Dedupe      bool          `mapstructure:"dedupe"`
	LogLevel    string        `mapstructure:"log_level"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMongo:
		if c.MongoURI == "" {
			return ErrMissingMongoURI
		}
	case StoreBadger:
		if c.BadgerPath == "" {
			return ErrMissingBadgerPath
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStore, c.Store)
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.QueueDepth <= 0 {
		return ErrInvalidQueueDepth
	}
	if c.MaxRetries <= 0 {
		return ErrInvalidRetries
	}
	if c.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	name := strings.ToLower(c.LogLevel)
	if name == "warning" {
		name = "warn"
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return level, nil
}
