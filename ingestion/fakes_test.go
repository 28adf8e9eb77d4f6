package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/poiesic/docloader/core"
	"github.com/poiesic/docloader/storage"
)

// fakeStore is an in-memory Target that records every call in order.
type fakeStore struct {
	mu sync.Mutex

	docs    map[string][]*core.Document
	indexes map[string][]core.IndexSpec
	calls   []string

	// reject returns a non-zero code for documents the store refuses.
	reject func(destination string, doc *core.Document) int
	// unavailable counts the remaining writes per destination that fail
	// with ErrUnavailable; a negative count fails forever.
	unavailable map[string]int
	// fatal makes every write to a destination fail with a non-retryable error.
	fatal map[string]error
	// indexErr fails CreateIndex for an index name.
	indexErr  map[string]error
	sampleErr error

	// beforeWrite runs outside the lock before a write is applied.
	beforeWrite func(destination string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:        make(map[string][]*core.Document),
		indexes:     make(map[string][]core.IndexSpec),
		unavailable: make(map[string]int),
		fatal:       make(map[string]error),
		indexErr:    make(map[string]error),
	}
}

func (f *fakeStore) BulkWrite(ctx context.Context, destination string, docs []*core.Document, opts storage.WriteOptions) (*storage.BulkResult, error) {
	if f.beforeWrite != nil {
		f.beforeWrite(destination)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("write:%s:%d", destination, len(docs)))

	if err := f.fatal[destination]; err != nil {
		return nil, err
	}
	if n := f.unavailable[destination]; n != 0 {
		if n > 0 {
			f.unavailable[destination] = n - 1
		}
		return nil, fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
	}

	result := &storage.BulkResult{}
	for i, doc := range docs {
		if f.reject != nil {
			if code := f.reject(destination, doc); code != 0 {
				result.Rejected++
				result.Errors = append(result.Errors, storage.WriteError{Index: i, Code: code, Message: "rejected"})
				continue
			}
		}
		f.docs[destination] = append(f.docs[destination], doc)
		result.Accepted++
	}
	if result.Rejected > 0 {
		return result, &storage.BulkWriteError{Result: *result}
	}
	return result, nil
}

func (f *fakeStore) CreateIndex(ctx context.Context, destination string, spec core.IndexSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("index:%s:%s", destination, spec.Name))

	if err := f.indexErr[spec.Name]; err != nil {
		return err
	}
	for _, existing := range f.indexes[destination] {
		if existing.Name == spec.Name {
			if existing.Equal(spec) {
				return nil
			}
			return storage.ErrInvalidIndex
		}
	}
	f.indexes[destination] = append(f.indexes[destination], spec)
	return nil
}

func (f *fakeStore) ListIndexes(ctx context.Context, destination string) ([]core.IndexSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.IndexSpec(nil), f.indexes[destination]...), nil
}

func (f *fakeStore) SampleDocument(ctx context.Context, destination string) (*core.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "sample:"+destination)

	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	if docs := f.docs[destination]; len(docs) > 0 {
		return docs[0], nil
	}
	return nil, nil
}

func (f *fakeStore) count(destination string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs[destination])
}

func (f *fakeStore) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// eventRecorder is an EventSink keeping every event.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) HandleEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) ofKind(kind EventKind) []Event {
	var out []Event
	for _, e := range r.all() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// records builds n records for group with entry names group/000.json...
func records(group string, n int) []core.Record {
	out := make([]core.Record, n)
	for i := range n {
		out[i] = rec(group, i)
	}
	return out
}

// sliceProducer yields records from a slice.
func sliceProducer(recs ...[]core.Record) RecordProducer {
	return ProducerFunc(func(ctx context.Context, fn func(core.Record) error) error {
		for _, group := range recs {
			for _, r := range group {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(r); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

var errBoom = errors.New("boom")
