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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docloader/core"
	"github.com/poiesic/docloader/storage"
)

// Default retry policy for unavailable stores.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

// BatchResult is the outcome of submitting one batch.
type BatchResult struct {
	Destination string
	Seq         int
	Submitted   int
	Accepted    int
	Rejected    int
	Errors      []storage.WriteError
	Attempts    int
	Duration    time.Duration
}

// Partial reports whether the store rejected some documents of the batch.
func (r BatchResult) Partial() bool {
	return r.Rejected > 0
}

// Writer submits batches as single unordered bulk writes.
type Writer struct {
	store       storage.DocumentWriter
	options     storage.WriteOptions
	maxAttempts int
	baseDelay   time.Duration
	onRetry     func(batch *core.Batch, attempt int, err error)
	logger      *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterRetry sets the attempt cap and base delay for unavailable stores.
func WithWriterRetry(maxAttempts int, baseDelay time.Duration) WriterOption {
	return func(w *Writer) {
		w.maxAttempts = maxAttempts
		w.baseDelay = baseDelay
	}
}

// WithWriteOptions overrides the bulk write options.
func WithWriteOptions(opts storage.WriteOptions) WriterOption {
	return func(w *Writer) {
		w.options = opts
	}
}

// WithRetryHook registers a callback invoked after each failed attempt that will be retried.
func WithRetryHook(fn func(batch *core.Batch, attempt int, err error)) WriterOption {
	return func(w *Writer) {
		w.onRetry = fn
	}
}

// WithWriterLogger sets a custom logger.
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWriter creates a writer using storage.BulkLoadOptions and the default retry policy.
func NewWriter(store storage.DocumentWriter, opts ...WriterOption) *Writer {
	w := &Writer{
		store:       store,
		options:     storage.BulkLoadOptions(),
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultRetryDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "writer")
	return w
}

// Submit writes batch with one bulk write call.
//
// Documents rejected by the store are counted in the result and dropped; the
// batch is not retried and Submit returns a nil error. When the store is
// unavailable the whole batch is retried with exponential backoff; once the
// attempts are exhausted, or on any other store error, Submit returns an
// error wrapping core.ErrWriteUnavailable.
//
// A write that has started always runs to completion, even if ctx is
// canceled meanwhile. Cancellation is observed between attempts and then
// returned as ctx.Err().
func (w *Writer) Submit(ctx context.Context, batch *core.Batch) (BatchResult, error) {
	if err := core.ValidateBatch(batch); err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{
		Destination: batch.Destination,
		Seq:         batch.Seq,
		Submitted:   batch.Len(),
	}
	docs := batch.Documents()
	start := time.Now()

	attempt := func() error {
		result.Attempts++
		res, err := w.store.BulkWrite(context.WithoutCancel(ctx), batch.Destination, docs, w.options)

		var bwe *storage.BulkWriteError
		switch {
		case err == nil:
			if res != nil {
				result.Accepted = res.Accepted
				result.Rejected = res.Rejected
				result.Errors = res.Errors
			} else {
				result.Accepted = len(docs)
			}
			return nil
		case errors.As(err, &bwe):
			result.Accepted = bwe.Result.Accepted
			result.Rejected = bwe.Result.Rejected
			result.Errors = bwe.Result.Errors
			w.logger.Debug("batch partially written",
				"destination", batch.Destination, "batch", batch.Seq,
				"accepted", result.Accepted, "rejected", result.Rejected)
			return nil
		case errors.Is(err, storage.ErrUnavailable):
			if w.onRetry != nil && result.Attempts < w.maxAttempts {
				w.onRetry(batch, result.Attempts, err)
			}
			return err
		default:
			return Permanent(err)
		}
	}

	err := RetryWithBackoff(ctx, attempt, w.maxAttempts, w.baseDelay)
	result.Duration = time.Since(start)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return result, err
	}
	return result, fmt.Errorf("%w: %s batch %d after %d attempt(s): %w",
		core.ErrWriteUnavailable, batch.Destination, batch.Seq, result.Attempts, err)
}
