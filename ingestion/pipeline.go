package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docloader/core"
	"github.com/poiesic/docloader/storage"
)

// DefaultQueueDepth bounds the sealed batches waiting per destination in pool mode.
const DefaultQueueDepth = 2

// Target is the store capability the pipeline needs: bulk writes plus index management.
type Target interface {
	storage.DocumentWriter
	storage.IndexManager
}

// RecordProducer yields records in a single forward pass.
// archive.Source implements it.
type RecordProducer interface {
	ForEach(ctx context.Context, fn func(core.Record) error) error
}

// ProducerFunc adapts a function to RecordProducer.
type ProducerFunc func(ctx context.Context, fn func(core.Record) error) error

func (f ProducerFunc) ForEach(ctx context.Context, fn func(core.Record) error) error {
	return f(ctx, fn)
}

// SkipCounter is implemented by producers that skip input they cannot turn into records.
type SkipCounter interface {
	SkipCounts() (decodeErrors, skipped int)
}

// Pipeline coordinates loads: records are accumulated into batches, batches
// are written per destination, and indexes are built once a destination has
// no more batches to write.
type Pipeline struct {
	store       Target
	batchSize   int
	workers     int
	queueDepth  int
	maxAttempts int
	retryDelay  time.Duration
	indexFields []string
	sinks       multiSink
	logger      *slog.Logger
	pool        *ants.Pool

	emitMu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithBatchSize sets the batch capacity. Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size <= 0 {
			size = DefaultBatchSize
		}
		p.batchSize = size
		return nil
	}
}

// WithWorkers sets the number of concurrent writers.
// One worker selects the sequential mode; more run batches on an ants pool.
func WithWorkers(workers int) Option {
	return func(p *Pipeline) error {
		if workers < 1 {
			return ErrInvalidWorkers
		}
		p.workers = workers
		return nil
	}
}

// WithQueueDepth bounds the sealed batches waiting per destination in pool mode.
// Default is DefaultQueueDepth.
func WithQueueDepth(depth int) Option {
	return func(p *Pipeline) error {
		if depth < 1 {
			depth = 1
		}
		p.queueDepth = depth
		return nil
	}
}

// WithRetry sets the attempt cap and base delay used when the store is unavailable.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxAttempts = maxAttempts
		p.retryDelay = baseDelay
		return nil
	}
}

// WithIndexFields sets the business fields indexed when present in a sampled document.
// Default is DefaultIndexFields.
func WithIndexFields(fields ...string) Option {
	return func(p *Pipeline) error {
		p.indexFields = append([]string{}, fields...)
		return nil
	}
}

// WithEventSink adds a sink receiving every event of a run.
func WithEventSink(sink EventSink) Option {
	return func(p *Pipeline) error {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline loading into store.
// Events are always logged; sinks added with WithEventSink receive them too.
func NewPipeline(store Target, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	p := &Pipeline{
		store:       store,
		batchSize:   DefaultBatchSize,
		workers:     1,
		queueDepth:  DefaultQueueDepth,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	p.logger = p.logger.With("component", "pipeline")
	p.sinks = append(multiSink{NewLogSink(p.logger)}, p.sinks...)

	if p.workers > 1 {
		pool, err := ants.NewPool(p.workers)
		if err != nil {
			return nil, err
		}
		p.pool = pool
	}

	return p, nil
}

// Workers returns the configured number of concurrent writers.
func (p *Pipeline) Workers() int {
	return p.workers
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// DecodeErrorHandler returns a callback reporting skipped entries as warning
// events. It matches archive.DecodeErrorHandler.
func (p *Pipeline) DecodeErrorHandler() func(entryName, group string, err error) {
	return func(entryName, group string, err error) {
		p.emit(Event{
			Level:       LevelWarning,
			Kind:        EventRecordSkipped,
			Destination: core.DestinationID(group),
			Message:     "skipping undecodable entry " + entryName,
			Err:         err,
		})
	}
}

func (p *Pipeline) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.sinks.HandleEvent(e)
}

// Run loads every record of producer and builds the indexes of each
// destination whose batches were all written.
//
// The returned summary covers every destination seen, including failed ones.
// Run returns an error, wrapping core.ErrArchiveUnreadable, only when the
// producer fails. Cancelling ctx lets in-flight writes finish, discards
// batches not yet written, skips indexing, and returns the summary with
// Interrupted set and a nil error.
func (p *Pipeline) Run(ctx context.Context, producer RecordProducer) (*RunSummary, error) {
	if producer == nil {
		return nil, ErrProducerRequired
	}

	r := p.newRun(ctx)
	p.emit(Event{Level: LevelInfo, Kind: EventRunStarted, Message: "run started"})

	acc := NewAccumulator(p.batchSize)
	perr := producer.ForEach(ctx, func(rec core.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := core.ValidateRecord(&rec); err != nil {
			r.skip(rec, err)
			return nil
		}
		r.observe(rec)
		if b := acc.Add(rec); b != nil {
			r.dispatch(b)
		}
		return nil
	})

	interrupted := ctx.Err() != nil
	if perr == nil && !interrupted {
		for _, b := range acc.Flush() {
			r.dispatch(b)
		}
	} else {
		for _, b := range acc.Flush() {
			r.discardSealed(b)
		}
	}
	r.inflight.Wait()

	interrupted = ctx.Err() != nil
	if perr == nil && !interrupted {
		r.buildIndexes()
	}

	if sc, ok := producer.(SkipCounter); ok {
		decodeErrors, skipped := sc.SkipCounts()
		r.summary.DecodeErrors += decodeErrors
		r.summary.EntriesSkipped += skipped
	}
	r.finish(interrupted)

	if perr != nil && !interrupted {
		if !errors.Is(perr, core.ErrArchiveUnreadable) {
			perr = fmt.Errorf("%w: %w", core.ErrArchiveUnreadable, perr)
		}
		p.emit(Event{Level: LevelError, Kind: EventRunFinished, Message: "run aborted", Err: perr})
		return r.summary, perr
	}

	p.emit(Event{
		Level:    LevelInfo,
		Kind:     EventRunFinished,
		Message:  "run finished",
		Accepted: r.summary.TotalLoaded(),
		Rejected: r.summary.TotalRejected(),
		Duration: time.Since(r.summary.StartedAt),
	})
	return r.summary, nil
}

// IndexOnly builds the indexes of existing destinations without loading anything.
func (p *Pipeline) IndexOnly(ctx context.Context, destinations []string) (*RunSummary, error) {
	r := p.newRun(ctx)
	for _, id := range destinations {
		r.destination(id)
	}
	r.buildIndexes()
	r.finish(ctx.Err() != nil)
	return r.summary, nil
}

// destination is the per-run state of one destination.
type destination struct {
	id        string
	state     core.DestinationState
	summary   *DestinationSummary
	pending   int // batches dispatched and not yet settled
	queue     chan *core.Batch
	scheduled bool // a drain task owns the queue
}

// run is the state of one Run call. The pipeline owns it exclusively.
type run struct {
	p       *Pipeline
	ctx     context.Context
	writer  *Writer
	indexer *IndexBuilder
	summary *RunSummary

	mu       sync.Mutex // guards dests, order and every destination
	dests    map[string]*destination
	order    []*destination
	inflight sync.WaitGroup
}

func (p *Pipeline) newRun(ctx context.Context) *run {
	r := &run{
		p:       p,
		ctx:     ctx,
		summary: &RunSummary{StartedAt: time.Now()},
		dests:   make(map[string]*destination),
	}
	r.writer = NewWriter(p.store,
		WithWriterRetry(p.maxAttempts, p.retryDelay),
		WithWriterLogger(p.logger),
		WithRetryHook(r.retry),
	)
	r.indexer = NewIndexBuilder(p.store, p.indexFields, p.logger)
	r.indexer.onIndex = r.indexed
	return r
}

// destination returns the state of id, creating it on first sight.
func (r *run) destination(id string) *destination {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.dests[id]; ok {
		return d
	}
	d := &destination{
		id:      id,
		state:   core.StateAccumulating,
		summary: &DestinationSummary{Destination: id, State: core.StateAccumulating, started: time.Now()},
	}
	if r.p.pool != nil {
		d.queue = make(chan *core.Batch, r.p.queueDepth)
	}
	r.dests[id] = d
	r.order = append(r.order, d)
	r.summary.Destinations = append(r.summary.Destinations, d.summary)
	r.p.emit(Event{Level: LevelInfo, Kind: EventDestinationDiscovered, Destination: id, Message: "destination discovered"})
	return d
}

// transition moves d to next. Must be called with r.mu held.
func (r *run) transition(d *destination, next core.DestinationState) {
	st, err := d.state.Transition(next)
	if err != nil {
		r.p.logger.Error("ignoring state change", "destination", d.id, "err", err)
		return
	}
	d.state = st
	d.summary.State = st
}

func (r *run) observe(rec core.Record) {
	d := r.destination(rec.Destination())
	r.mu.Lock()
	d.summary.Observed++
	r.mu.Unlock()
}

func (r *run) skip(rec core.Record, err error) {
	r.mu.Lock()
	r.summary.DecodeErrors++
	r.mu.Unlock()
	r.p.emit(Event{
		Level:   LevelWarning,
		Kind:    EventRecordSkipped,
		Message: "skipping invalid record " + rec.EntryName,
		Err:     err,
	})
}

// dispatch hands a sealed batch to the writer: inline in sequential mode,
// through the destination queue in pool mode.
func (r *run) dispatch(b *core.Batch) {
	d := r.destination(b.Destination)

	r.mu.Lock()
	if d.state == core.StateFailed {
		r.mu.Unlock()
		r.discardSealed(b)
		return
	}
	r.transition(d, core.StateFlushing)
	d.pending++
	d.summary.Batches++
	r.mu.Unlock()

	r.p.emit(Event{
		Level:       LevelInfo,
		Kind:        EventBatchSubmitted,
		Destination: b.Destination,
		Seq:         b.Seq,
		Message:     fmt.Sprintf("batch submitted with %d documents", b.Len()),
	})

	if r.p.pool == nil {
		r.process(d, b)
		return
	}

	r.inflight.Add(1)
	select {
	case d.queue <- b:
	case <-r.ctx.Done():
		r.settle(d, b, BatchResult{}, errDiscarded)
		r.inflight.Done()
		return
	}

	r.mu.Lock()
	if d.scheduled {
		r.mu.Unlock()
		return
	}
	d.scheduled = true
	r.mu.Unlock()

	if err := r.p.pool.Submit(func() { r.drain(d) }); err != nil {
		r.p.logger.Warn("pool rejected task, draining inline", "destination", d.id, "err", err)
		r.drain(d)
	}
}

// drain writes queued batches of d until its queue is empty.
func (r *run) drain(d *destination) {
	for {
		r.mu.Lock()
		var b *core.Batch
		select {
		case b = <-d.queue:
		default:
		}
		if b == nil {
			d.scheduled = false
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		r.process(d, b)
		r.inflight.Done()
	}
}

// errDiscarded marks batches dropped without a write attempt.
var errDiscarded = errors.New("batch discarded")

func (r *run) process(d *destination, b *core.Batch) {
	r.mu.Lock()
	failed := d.state == core.StateFailed
	r.mu.Unlock()

	if failed || r.ctx.Err() != nil {
		r.settle(d, b, BatchResult{}, errDiscarded)
		return
	}

	res, err := r.writer.Submit(r.ctx, b)
	if err != nil && r.ctx.Err() != nil && errors.Is(err, r.ctx.Err()) {
		err = errDiscarded
	}
	r.settle(d, b, res, err)
}

// settle records the outcome of a dispatched batch.
func (r *run) settle(d *destination, b *core.Batch, res BatchResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d.pending--
	switch {
	case errors.Is(err, errDiscarded):
		d.summary.Discarded += b.Len()
		r.p.emit(Event{
			Level:       LevelWarning,
			Kind:        EventBatchDiscarded,
			Destination: d.id,
			Seq:         b.Seq,
			Message:     "batch discarded before write",
			Rejected:    b.Len(),
		})

	case err != nil:
		d.summary.Discarded += b.Len()
		r.p.emit(Event{
			Level:       LevelError,
			Kind:        EventBatchFailed,
			Destination: d.id,
			Seq:         b.Seq,
			Message:     "batch write failed",
			Rejected:    b.Len(),
			Duration:    res.Duration,
			Err:         err,
		})
		if d.state != core.StateFailed {
			r.transition(d, core.StateFailed)
			d.summary.Error = err.Error()
			d.summary.finish(time.Now())
			r.p.emit(Event{
				Level:       LevelError,
				Kind:        EventDestinationFailed,
				Destination: d.id,
				Message:     "destination failed, remaining batches will be discarded",
				Err:         err,
			})
		}

	default:
		d.summary.Loaded += res.Accepted
		d.summary.Rejected += res.Rejected
		kind, level, msg := EventBatchWritten, LevelInfo, "batch written"
		if res.Partial() {
			kind, level, msg = EventBatchPartial, LevelWarning, "batch partially written"
		}
		var partialErr error
		if res.Partial() {
			partialErr = fmt.Errorf("%w: %d of %d documents rejected", core.ErrPartialWrite, res.Rejected, res.Submitted)
		}
		r.p.emit(Event{
			Level:       level,
			Kind:        kind,
			Destination: d.id,
			Seq:         b.Seq,
			Message:     msg,
			Accepted:    res.Accepted,
			Rejected:    res.Rejected,
			Duration:    res.Duration,
			Err:         partialErr,
		})
		if d.pending == 0 && d.state == core.StateFlushing {
			r.transition(d, core.StateAccumulating)
		}
	}
}

// discardSealed drops a batch that was never dispatched.
func (r *run) discardSealed(b *core.Batch) {
	d := r.destination(b.Destination)
	r.mu.Lock()
	defer r.mu.Unlock()
	d.summary.Discarded += b.Len()
	r.p.emit(Event{
		Level:       LevelWarning,
		Kind:        EventBatchDiscarded,
		Destination: d.id,
		Seq:         b.Seq,
		Message:     "batch discarded before write",
		Rejected:    b.Len(),
	})
}

func (r *run) retry(b *core.Batch, attempt int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.dests[b.Destination]; ok {
		d.summary.Retries++
	}
	r.p.emit(Event{
		Level:       LevelWarning,
		Kind:        EventBatchRetry,
		Destination: b.Destination,
		Seq:         b.Seq,
		Message:     fmt.Sprintf("store unavailable, retrying (attempt %d)", attempt),
		Err:         err,
	})
}

// buildIndexes runs the index builder for every destination whose batches
// have all been acknowledged. It must be called after all writes settled.
func (r *run) buildIndexes() {
	r.mu.Lock()
	var ready []*destination
	for _, d := range r.order {
		if d.state != core.StateAccumulating || d.pending != 0 {
			continue
		}
		r.transition(d, core.StateIndexing)
		ready = append(ready, d)
		r.p.emit(Event{Level: LevelInfo, Kind: EventIndexStarted, Destination: d.id, Message: "building indexes"})
	}
	r.mu.Unlock()

	if r.p.pool == nil {
		for _, d := range ready {
			r.index(d)
		}
		return
	}

	var wg sync.WaitGroup
	for _, d := range ready {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			r.index(d)
		}
		if err := r.p.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
}

func (r *run) index(d *destination) {
	res := r.indexer.Build(r.ctx, d.id)

	r.mu.Lock()
	defer r.mu.Unlock()
	d.summary.IndexesBuilt = append(d.summary.IndexesBuilt, res.Built...)
	for _, f := range res.Failures {
		d.summary.IndexFailures = append(d.summary.IndexFailures, f.Err.Error())
	}
	if res.SampleErr != nil {
		d.summary.IndexFailures = append(d.summary.IndexFailures, res.SampleErr.Error())
	}
	r.transition(d, core.StateDone)
	d.summary.finish(time.Now())

	level := LevelInfo
	if len(res.Failures) > 0 || res.SampleErr != nil {
		level = LevelWarning
	}
	r.p.emit(Event{
		Level:       level,
		Kind:        EventDestinationDone,
		Destination: d.id,
		Message:     fmt.Sprintf("destination done, %d of %d indexes built", len(res.Built), len(res.Planned)),
		Accepted:    d.summary.Loaded,
		Rejected:    d.summary.Rejected,
		Duration:    res.Duration,
	})
}

func (r *run) indexed(destination string, spec core.IndexSpec, err error) {
	if err != nil {
		r.p.emit(Event{Level: LevelWarning, Kind: EventIndexFailed, Destination: destination, Index: spec.Name, Message: "index build failed", Err: err})
		return
	}
	r.p.emit(Event{Level: LevelInfo, Kind: EventIndexBuilt, Destination: destination, Index: spec.Name, Message: "index built"})
}

// finish reports destinations that never reached indexing and stamps timings.
func (r *run) finish(interrupted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, d := range r.order {
		if d.state.Terminal() {
			continue
		}
		d.summary.Interrupted = true
		d.summary.finish(now)
		r.p.emit(Event{
			Level:       LevelWarning,
			Kind:        EventDestinationInterrupted,
			Destination: d.id,
			Message:     "destination left without secondary indexes",
		})
	}
	r.summary.Interrupted = interrupted
	r.summary.ElapsedSeconds = now.Sub(r.summary.StartedAt).Seconds()
}
