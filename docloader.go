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

// Package docloader bulk-loads JSON records from archives into a document
// store. Loader wires a configured store, an archive record source, and an
// ingestion pipeline together.
package docloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/docloader/archive"
	"github.com/poiesic/docloader/config"
	"github.com/poiesic/docloader/core"
	"github.com/poiesic/docloader/ingestion"
	"github.com/poiesic/docloader/storage"
	"github.com/poiesic/docloader/storage/badger"
	"github.com/poiesic/docloader/storage/mongo"
)

var (
	// ErrConfigRequired is returned when NewLoader is called without a configuration.
	ErrConfigRequired = errors.New("config is required")
	// ErrNoRecords is returned by Load when the archive holds no record entries.
	ErrNoRecords = errors.New("no JSON entries found in archive")
)

// Minimum MongoDB connection pool bounds.
const (
	minMongoPoolSize  = 100
	mongoMinIdleConns = 10
	connsPerWorker    = 4
)

// Loader loads archives into the configured document store and builds the
// indexes of each destination it fills.
type Loader struct {
	cfg        *config.Config
	store      storage.Store
	ownsStore  bool
	sinks      []ingestion.EventSink
	progress   io.Writer
	reportStep int
	logger     *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithStore makes the loader use store instead of opening one from the
// configuration. The caller keeps ownership of store.
func WithStore(store storage.Store) LoaderOption {
	return func(l *Loader) {
		l.store = store
	}
}

// WithEventSink adds a sink receiving the events of every load.
func WithEventSink(sink ingestion.EventSink) LoaderOption {
	return func(l *Loader) {
		if sink != nil {
			l.sinks = append(l.sinks, sink)
		}
	}
}

// WithProgress reports load progress to w every step documents.
func WithProgress(w io.Writer, step int) LoaderOption {
	return func(l *Loader) {
		l.progress = w
		l.reportStep = step
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader for cfg, connecting to the configured store
// unless WithStore supplies one.
func NewLoader(ctx context.Context, cfg *config.Config, opts ...LoaderOption) (*Loader, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}

	l := &Loader{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.store == nil {
		store, err := OpenStore(ctx, cfg, l.logger)
		if err != nil {
			return nil, err
		}
		l.store = store
		l.ownsStore = true
	}
	return l, nil
}

// OpenStore opens the store selected by cfg.Store.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreMongo:
		mcfg := mongo.DefaultConfig(cfg.MongoURI, cfg.Database)
		mcfg.MaxPoolSize = uint64(max(minMongoPoolSize, connsPerWorker*cfg.Workers))
		mcfg.MinPoolSize = mongoMinIdleConns
		store, err := mongo.Connect(ctx, mcfg, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreBadger:
		store, err := badger.Open(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidStore, cfg.Store)
	}
}

// Close closes the store if the loader opened it.
func (l *Loader) Close() error {
	if !l.ownsStore {
		return nil
	}
	if err := l.store.Close(); err != nil {
		l.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}

// Store returns the store loads are written to.
func (l *Loader) Store() storage.Store {
	return l.store
}

// NewPipeline creates a pipeline configured from the loader settings.
// extra options are applied after the configured ones.
func (l *Loader) NewPipeline(extra ...ingestion.Option) (*ingestion.Pipeline, error) {
	opts := []ingestion.Option{
		ingestion.WithBatchSize(l.cfg.BatchSize),
		ingestion.WithWorkers(l.cfg.Workers),
		ingestion.WithQueueDepth(l.cfg.QueueDepth),
		ingestion.WithRetry(l.cfg.MaxRetries, l.cfg.RetryDelay),
		ingestion.WithLogger(l.logger),
	}
	if l.cfg.IndexFields != nil {
		opts = append(opts, ingestion.WithIndexFields(l.cfg.IndexFields...))
	}
	for _, sink := range l.sinks {
		opts = append(opts, ingestion.WithEventSink(sink))
	}
	opts = append(opts, extra...)
	return ingestion.NewPipeline(l.store, opts...)
}

// Load loads every record of the archive at path.
// It fails only when the archive cannot be opened or read, or holds no record
// entries; write and index failures are reported per destination in the summary.
func (l *Loader) Load(ctx context.Context, path string) (*ingestion.RunSummary, error) {
	a, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	var extra []ingestion.Option
	var tracker *ingestion.ProgressTracker
	if l.progress != nil {
		tracker = ingestion.NewProgressTracker(l.progress, 0, l.reportStep)
		extra = append(extra, ingestion.WithEventSink(tracker))
	}

	p, err := l.NewPipeline(extra...)
	if err != nil {
		return nil, err
	}
	defer p.Release()

	sourceOpts := []archive.SourceOption{
		archive.WithDecodeErrorHandler(p.DecodeErrorHandler()),
		archive.WithSourceLogger(l.logger),
	}
	if l.cfg.Dedupe {
		sourceOpts = append(sourceOpts, archive.WithDeterministicIDs())
	}
	src := archive.NewSource(a, sourceOpts...)
	if src.Candidates() == 0 {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrArchiveUnreadable, path, ErrNoRecords)
	}

	if tracker != nil {
		tracker.SetTotal(src.Candidates())
		defer tracker.Finish()
	}

	l.logger.Info("loading archive", "path", path, "store", l.cfg.Store, "workers", p.Workers())
	return p.Run(ctx, src)
}

// IndexOnly builds the indexes of destinations that already hold documents.
// With no destinations given, every destination in the store is indexed.
func (l *Loader) IndexOnly(ctx context.Context, destinations ...string) (*ingestion.RunSummary, error) {
	if len(destinations) == 0 {
		all, err := l.store.ListDestinations(ctx)
		if err != nil {
			return nil, fmt.Errorf("list destinations: %w", err)
		}
		destinations = all
	}

	p, err := l.NewPipeline()
	if err != nil {
		return nil, err
	}
	defer p.Release()

	return p.IndexOnly(ctx, destinations)
}
