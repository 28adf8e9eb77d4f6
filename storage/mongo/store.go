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

package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/docloader/core"
	"github.com/poiesic/docloader/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Server error codes that mean an index with the same name already exists
// with different keys or options.
const (
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

// Config holds MongoDB connection settings.
type Config struct {
	URI      string
	Database string

	MaxPoolSize            uint64
	MinPoolSize            uint64
	MaxConnIdleTime        time.Duration
	ServerSelectionTimeout time.Duration
	ConnectTimeout         time.Duration
}

// DefaultConfig returns the pool settings tuned for bulk loads.
func DefaultConfig(uri, database string) Config {
	return Config{
		URI:                    uri,
		Database:               database,
		MaxPoolSize:            100,
		MinPoolSize:            10,
		MaxConnIdleTime:        30 * time.Second,
		ServerSelectionTimeout: 5 * time.Second,
		ConnectTimeout:         10 * time.Second,
	}
}

// Store implements storage.Store on a MongoDB database.
// Destinations map to collections of the same name.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Connect opens a client with the pool settings of cfg and verifies it can
// reach the primary.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mongo")

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %w", storage.ErrUnavailable, cfg.Database, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: ping: %w", storage.ErrUnavailable, err)
	}

	logger.Info("connected", "database", cfg.Database, "max_pool", cfg.MaxPoolSize, "min_pool", cfg.MinPoolSize)
	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) collection(destination string, wc storage.WriteConcern) *mongo.Collection {
	opts := options.Collection()
	switch wc {
	case storage.WriteConcernPrimaryAck:
		opts.SetWriteConcern(writeconcern.W1())
	case storage.WriteConcernMajority:
		opts.SetWriteConcern(writeconcern.Majority())
	}
	return s.db.Collection(destination, opts)
}

// BulkWrite inserts docs with a single InsertMany call.
func (s *Store) BulkWrite(ctx context.Context, destination string, docs []*core.Document, opts storage.WriteOptions) (*storage.BulkResult, error) {
	if len(docs) == 0 {
		return &storage.BulkResult{}, nil
	}

	payload := make([]any, len(docs))
	for i, doc := range docs {
		payload[i] = toBSON(doc)
	}

	insertOpts := options.InsertMany().
		SetOrdered(opts.Ordered).
		SetBypassDocumentValidation(opts.BypassValidation)

	res, err := s.collection(destination, opts.WriteConcern).InsertMany(ctx, payload, insertOpts)
	if err == nil {
		return &storage.BulkResult{Accepted: len(res.InsertedIDs)}, nil
	}

	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 && bwe.WriteConcernError == nil {
		result := bulkResultFromException(bwe, len(docs), opts.Ordered)
		return result, &storage.BulkWriteError{Result: *result}
	}

	return nil, classify(err)
}

// bulkResultFromException converts per-document driver errors.
// Unordered writes attempt every document; ordered writes stop at the first error.
func bulkResultFromException(bwe mongo.BulkWriteException, submitted int, ordered bool) *storage.BulkResult {
	result := &storage.BulkResult{Rejected: len(bwe.WriteErrors)}
	for _, we := range bwe.WriteErrors {
		result.Errors = append(result.Errors, storage.WriteError{
			Index:   we.Index,
			Code:    we.Code,
			Message: we.Message,
		})
	}
	if ordered {
		result.Accepted = bwe.WriteErrors[0].Index
	} else {
		result.Accepted = submitted - result.Rejected
	}
	return result
}

// classify maps connectivity failures to storage.ErrUnavailable.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsNetworkError(err),
		mongo.IsTimeout(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	default:
		return err
	}
}

// CreateIndex creates an ascending index. The server treats an identical
// existing index as success.
func (s *Store) CreateIndex(ctx context.Context, destination string, spec core.IndexSpec) error {
	if spec.Name == "" || len(spec.Fields) == 0 {
		return fmt.Errorf("%w: %q", storage.ErrInvalidIndex, spec.Name)
	}

	keys := make(bson.D, len(spec.Fields))
	for i, f := range spec.Fields {
		keys[i] = bson.E{Key: f, Value: 1}
	}
	model := mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetName(spec.Name),
	}

	_, err := s.db.Collection(destination).Indexes().CreateOne(ctx, model)
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(codeIndexOptionsConflict) || se.HasErrorCode(codeIndexKeySpecsConflict)) {
		return fmt.Errorf("%w: %w", storage.ErrInvalidIndex, err)
	}
	return classify(err)
}

type indexInfo struct {
	Name string `bson:"name"`
	Key  bson.D `bson:"key"`
}

// ListIndexes returns the secondary indexes of destination, excluding _id.
func (s *Store) ListIndexes(ctx context.Context, destination string) ([]core.IndexSpec, error) {
	cursor, err := s.db.Collection(destination).Indexes().List(ctx)
	if err != nil {
		return nil, classify(err)
	}
	var infos []indexInfo
	if err := cursor.All(ctx, &infos); err != nil {
		return nil, classify(err)
	}

	specs := make([]core.IndexSpec, 0, len(infos))
	for _, info := range infos {
		if info.Name == "_id_" {
			continue
		}
		fields := make([]string, len(info.Key))
		for i, k := range info.Key {
			fields[i] = k.Key
		}
		specs = append(specs, core.IndexSpec{Name: info.Name, Fields: fields})
	}
	slices.SortFunc(specs, func(a, b core.IndexSpec) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return specs, nil
}

// SampleDocument returns one document of destination, or nil if it is empty.
func (s *Store) SampleDocument(ctx context.Context, destination string) (*core.Document, error) {
	var raw bson.D
	err := s.db.Collection(destination).FindOne(ctx, bson.D{}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return fromBSON(raw)
}

// CountDocuments returns the collection's estimated document count.
func (s *Store) CountDocuments(ctx context.Context, destination string) (int64, error) {
	n, err := s.db.Collection(destination).EstimatedDocumentCount(ctx)
	return n, classify(err)
}

// ListDestinations returns the collection names of the database, sorted.
func (s *Store) ListDestinations(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, classify(err)
	}
	slices.Sort(names)
	return names, nil
}
