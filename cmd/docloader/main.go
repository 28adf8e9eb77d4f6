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

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/docloader"
	"github.com/poiesic/docloader/config"
	"github.com/poiesic/docloader/ingestion"
	"github.com/poiesic/docloader/metrics"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docloader",
		Usage: "Bulk-load JSON records from archives into a document store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   config.DefaultLogLevel,
				EnvVars: []string{"DOCLOADER_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a yaml, toml, json or .env config file (default ./.env when present)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "load",
				Usage:     "Load every JSON entry of an archive, then build indexes",
				ArgsUsage: "[archive]",
				Action:    loadCommand,
				Flags: append(storeFlags(),
					&cli.StringFlag{
						Name:    "zip",
						Aliases: []string{"z"},
						Usage:   "Archive to load (.zip, .tar, .tar.lz4); overrides ZIP_PATH",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents per bulk write",
						Value: config.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "Concurrent bulk writers; 1 writes sequentially",
						Value:   config.DefaultWorkers,
					},
					&cli.IntFlag{
						Name:  "queue-depth",
						Usage: "Sealed batches buffered per destination when workers > 1",
						Value: config.DefaultQueueDepth,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum write attempts while the store is unavailable",
						Value: config.DefaultMaxRetries,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: config.DefaultRetryDelay,
					},
					&cli.BoolFlag{
						Name:  "dedupe",
						Usage: "Derive _id from the entry name so reloads reject duplicates",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address during the load (e.g. :9090)",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 1000,
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Do not report progress",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the run summary as JSON",
					},
				),
			},
			{
				Name:   "index",
				Usage:  "Build secondary indexes of destinations already loaded",
				Action: indexCommand,
				Flags: append(storeFlags(),
					&cli.StringSliceFlag{
						Name:    "destination",
						Aliases: []string{"d"},
						Usage:   "Destination to index; repeatable (default every destination)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the run summary as JSON",
					},
				),
			},
		},
	}
}

// storeFlags are shared by every command that opens a store.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "store",
			Usage: "Store backend (mongo, badger)",
			Value: config.DefaultStore,
		},
		&cli.StringFlag{
			Name:  "mongo-uri",
			Usage: "MongoDB connection URI; overrides MONGO_URI",
		},
		&cli.StringFlag{
			Name:  "database",
			Usage: "MongoDB database name; overrides DATABASE_NAME",
			Value: config.DefaultDatabase,
		},
		&cli.StringFlag{
			Name:  "badger-path",
			Usage: "BadgerDB directory for the badger store",
		},
		&cli.StringSliceFlag{
			Name:  "index-field",
			Usage: "Business field indexed when present in the sampled document; repeatable",
		},
	}
}

// commandConfig loads the configuration and applies the flags set on the command line.
func commandConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Read(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("store") {
		cfg.Store = c.String("store")
	}
	if c.IsSet("mongo-uri") {
		cfg.MongoURI = c.String("mongo-uri")
	}
	if c.IsSet("database") {
		cfg.Database = c.String("database")
	}
	if c.IsSet("badger-path") {
		cfg.BadgerPath = c.String("badger-path")
	}
	if c.IsSet("index-field") {
		cfg.IndexFields = c.StringSlice("index-field")
	}
	if c.IsSet("zip") {
		cfg.ZipPath = c.String("zip")
	}
	if c.IsSet("batch-size") {
		cfg.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("queue-depth") {
		cfg.QueueDepth = c.Int("queue-depth")
	}
	if c.IsSet("max-retries") {
		cfg.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("retry-delay") {
		cfg.RetryDelay = c.Duration("retry-delay")
	}
	if c.IsSet("dedupe") {
		cfg.Dedupe = c.Bool("dedupe")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
	if c.Args().Present() {
		cfg.ZipPath = c.Args().First()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadCommand(c *cli.Context) error {
	cfg, err := commandConfig(c)
	if err != nil {
		return err
	}
	if cfg.ZipPath == "" {
		return fmt.Errorf("archive path is required: pass it as an argument, --zip, or ZIP_PATH")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []docloader.LoaderOption{docloader.WithLogger(slog.Default())}
	if !c.Bool("quiet") {
		opts = append(opts, docloader.WithProgress(os.Stderr, c.Int("report-interval")))
	}
	var sink *metrics.Sink
	if cfg.MetricsAddr != "" {
		sink = metrics.NewSink()
		opts = append(opts, docloader.WithEventSink(sink))
	}

	loader, err := docloader.NewLoader(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer loader.Close()

	fmt.Fprintf(os.Stderr, "Archive: %s\n", cfg.ZipPath)
	fmt.Fprintf(os.Stderr, "Store: %s\n", describeStore(cfg))
	fmt.Fprintf(os.Stderr, "Batch size: %d, workers: %d\n", cfg.BatchSize, cfg.Workers)
	fmt.Fprintln(os.Stderr)

	summary, err := runLoad(ctx, loader, cfg, sink)
	if summary != nil {
		if reportErr := report(c, summary); reportErr != nil {
			return reportErr
		}
	}
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	return exitStatus(summary)
}

// runLoad runs the load and, when sink is set, serves its metrics until the load ends.
func runLoad(ctx context.Context, loader *docloader.Loader, cfg *config.Config, sink *metrics.Sink) (*ingestion.RunSummary, error) {
	if sink == nil {
		return loader.Load(ctx, cfg.ZipPath)
	}

	// Bind before loading so a busy address fails the command up front.
	ln, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("metrics server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", sink.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	var g errgroup.Group
	g.Go(func() error {
		slog.Info("serving metrics", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "addr", ln.Addr().String(), "err", err)
		}
		return nil
	})

	summary, loadErr := loader.Load(ctx, cfg.ZipPath)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown", "err", err)
	}
	_ = g.Wait()
	return summary, loadErr
}

func indexCommand(c *cli.Context) error {
	cfg, err := commandConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := docloader.NewLoader(ctx, cfg, docloader.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer loader.Close()

	summary, err := loader.IndexOnly(ctx, c.StringSlice("destination")...)
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	if err := report(c, summary); err != nil {
		return err
	}
	return exitStatus(summary)
}

func describeStore(cfg *config.Config) string {
	if cfg.Store == config.StoreBadger {
		return "badger " + cfg.BadgerPath
	}
	return "mongo database " + cfg.Database
}

func report(c *cli.Context, summary *ingestion.RunSummary) error {
	if c.Bool("json") {
		return writeJSON(c.App.Writer, summary)
	}
	renderSummary(c.App.Writer, summary)
	return nil
}

// exitStatus fails the command when any destination failed.
func exitStatus(summary *ingestion.RunSummary) error {
	if failed := summary.Failed(); len(failed) > 0 {
		return cli.Exit(fmt.Sprintf("%d destination(s) failed: %v", len(failed), failed), 1)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	cfg := config.Config{LogLevel: c.String("log-level")}
	level, err := cfg.SlogLevel()
	if err != nil {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.String("log-level"))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
