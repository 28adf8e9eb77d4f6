package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docloader/core"
	"github.com/poiesic/docloader/storage"
)

// Validator checks a document before it is written. It is skipped when a
// write sets WriteOptions.BypassValidation.
type Validator func(destination string, doc *core.Document) error

// DocumentStore implements storage.Store on top of BadgerDB.
// Every destination is a key range; secondary indexes are maintained as
// separate key ranges pointing back at document keys.
type DocumentStore struct {
	backend     *Backend
	idSeq       *badger.Sequence
	validator   Validator
	ownsBackend bool
	logger      *slog.Logger

	// indexMu serializes index creation with the index lookup of bulk writes,
	// so a write never misses an index created concurrently.
	indexMu sync.RWMutex
}

var _ storage.Store = (*DocumentStore)(nil)

// StoreOption configures a DocumentStore.
type StoreOption func(*DocumentStore)

// WithValidator installs a document validator.
func WithValidator(v Validator) StoreOption {
	return func(s *DocumentStore) {
		s.validator = v
	}
}

// NewDocumentStore creates a DocumentStore on an open backend.
// The caller keeps ownership of the backend.
func NewDocumentStore(backend *Backend, opts ...StoreOption) (*DocumentStore, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	s := &DocumentStore{
		backend: backend,
		idSeq:   idSeq,
		logger:  backend.logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open opens a BadgerDB database at path and returns a store that owns it.
func Open(path string, opts ...StoreOption) (*DocumentStore, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	s, err := NewDocumentStore(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	s.ownsBackend = true
	return s, nil
}

// Close releases the ID sequence and, if the store owns it, the backend.
func (s *DocumentStore) Close() error {
	err := s.idSeq.Release()
	if s.ownsBackend {
		if closeErr := s.backend.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	return err
}

// BulkWrite inserts docs into destination.
// Documents without _id receive a sequential integer _id; docs are updated in place.
// With unordered writes every document is attempted and rejections are
// reported per document in a *storage.BulkWriteError.
func (s *DocumentStore) BulkWrite(ctx context.Context, destination string, docs []*core.Document, opts storage.WriteOptions) (*storage.BulkResult, error) {
	if s.backend.IsClosed() {
		return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, storage.ErrStorageClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	specs, err := s.loadIndexSpecs(destination)
	if err != nil {
		return nil, fmt.Errorf("%w: loading index catalog: %w", storage.ErrUnavailable, err)
	}

	result := &storage.BulkResult{}
	reject := func(i, code int, err error) {
		result.Rejected++
		result.Errors = append(result.Errors, storage.WriteError{Index: i, Code: code, Message: err.Error()})
	}

	tx := s.backend.NewTx(true)
	defer func() { tx.Discard() }()

	if err := tx.Set(makeDestinationKey(destination), nil); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}

	for i, doc := range docs {
		if doc == nil {
			reject(i, storage.CodeInvalidDocument, fmt.Errorf("%w: nil document", storage.ErrInvalidDocument))
			if opts.Ordered {
				break
			}
			continue
		}
		if !opts.BypassValidation && s.validator != nil {
			if err := s.validator(destination, doc); err != nil {
				reject(i, storage.CodeDocumentValidation, fmt.Errorf("document failed validation: %w", err))
				if opts.Ordered {
					break
				}
				continue
			}
		}

		encodedID, err := s.assignID(doc)
		if err != nil {
			reject(i, storage.CodeInvalidDocument, err)
			if opts.Ordered {
				break
			}
			continue
		}

		key := makeDocumentKey(destination, encodedID)
		_, getErr := tx.Get(key)
		if getErr == nil {
			reject(i, storage.CodeDuplicateKey, fmt.Errorf("%w: %s _id %s", storage.ErrDuplicateKey, destination, describeID(encodedID)))
			if opts.Ordered {
				break
			}
			continue
		}
		if !errors.Is(getErr, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, getErr)
		}

		entries := s.documentEntries(destination, doc, key, encodedID, specs)
		if err := setEntries(tx, entries); err != nil {
			if !errors.Is(err, badger.ErrTxnTooBig) {
				return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
			}
			// Transaction is full: commit what we have and continue in a new one.
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
			}
			tx = s.backend.NewTx(true)
			if err := setEntries(tx, entries); err != nil {
				return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
			}
		}
		result.Accepted++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}

	if result.Rejected > 0 {
		return result, &storage.BulkWriteError{Result: *result}
	}
	return result, nil
}

type kv struct {
	key, value []byte
}

func setEntries(tx *badger.Txn, entries []kv) error {
	for _, e := range entries {
		if err := tx.Set(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

// documentEntries returns the document itself plus one entry per index.
func (s *DocumentStore) documentEntries(destination string, doc *core.Document, key, encodedID []byte, specs []core.IndexSpec) []kv {
	entries := make([]kv, 0, 1+len(specs))
	entries = append(entries, kv{key: key, value: storage.MarshalDocument(doc)})
	for _, spec := range specs {
		entries = append(entries, kv{
			key: makeIndexEntryKey(destination, spec.Name, indexValues(doc, spec), encodedID),
		})
	}
	return entries
}

// assignID returns the encoded _id of doc, generating one from the sequence if absent.
func (s *DocumentStore) assignID(doc *core.Document) ([]byte, error) {
	if id, ok := doc.Get(core.FieldID); ok {
		return encodeID(id)
	}
	next, err := s.idSeq.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if next == 0 {
		if next, err = s.idSeq.Next(); err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
		}
	}
	id := core.Int(int64(next))
	doc.Set(core.FieldID, id)
	return encodeID(id)
}

// CreateIndex builds spec over the existing documents of destination and
// records it so later writes maintain it. An identical existing index is a no-op.
func (s *DocumentStore) CreateIndex(ctx context.Context, destination string, spec core.IndexSpec) error {
	if s.backend.IsClosed() {
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, storage.ErrStorageClosed)
	}
	if spec.Name == "" || len(spec.Fields) == 0 {
		return fmt.Errorf("%w: %q", storage.ErrInvalidIndex, spec.Name)
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	existing, err := s.loadIndexSpecs(destination)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Name != spec.Name {
			continue
		}
		if e.Equal(spec) {
			s.logger.Debug("index already exists", "destination", destination, "index", spec.Name)
			return nil
		}
		return fmt.Errorf("%w: index %q already exists with fields %v", storage.ErrInvalidIndex, spec.Name, e.Fields)
	}

	wb := s.backend.NewWriteBatch()
	defer wb.Cancel()

	prefix := makeDocumentPrefix(destination)
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			encodedID := bytes.Clone(item.Key()[len(prefix):])
			var doc *core.Document
			err := item.Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			if err := wb.Set(makeIndexEntryKey(destination, spec.Name, indexValues(doc, spec), encodedID), nil); err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	if err := wb.Set(makeIndexCatalogKey(destination, spec.Name), storage.MarshalIndexSpec(spec)); err != nil {
		return err
	}
	return wb.Flush()
}

// ListIndexes returns the indexes recorded for destination, ordered by name.
func (s *DocumentStore) ListIndexes(ctx context.Context, destination string) ([]core.IndexSpec, error) {
	return s.loadIndexSpecs(destination)
}

func (s *DocumentStore) loadIndexSpecs(destination string) ([]core.IndexSpec, error) {
	var specs []core.IndexSpec
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeIndexCatalogPrefix(destination)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				spec, err := storage.UnmarshalIndexSpec(val)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return specs, err
}

// SampleDocument returns the first document of destination in key order.
func (s *DocumentStore) SampleDocument(ctx context.Context, destination string) (*core.Document, error) {
	var doc *core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocumentPrefix(destination)
		opts.PrefetchSize = 1
		iter := tx.NewIterator(opts)
		defer iter.Close()

		iter.Rewind()
		if !iter.Valid() {
			return nil
		}
		return iter.Item().Value(func(val []byte) error {
			var err error
			doc, err = storage.UnmarshalDocument(val)
			return err
		})
	}, false)
	return doc, err
}

// CountDocuments counts the documents of destination.
func (s *DocumentStore) CountDocuments(ctx context.Context, destination string) (int64, error) {
	return s.countPrefix(makeDocumentPrefix(destination))
}

// countIndexEntries counts the entries of one index.
func (s *DocumentStore) countIndexEntries(destination, indexName string) (int64, error) {
	return s.countPrefix(makeIndexPrefix(destination, indexName))
}

func (s *DocumentStore) countPrefix(prefix []byte) (int64, error) {
	var count int64
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// ListDestinations returns every destination that received a write, sorted.
func (s *DocumentStore) ListDestinations(ctx context.Context) ([]string, error) {
	var names []string
	prefix := []byte(destinationPrefix + ":")
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			names = append(names, string(iter.Item().Key()[len(prefix):]))
		}
		return nil
	}, false)
	slices.Sort(names)
	return names, err
}
