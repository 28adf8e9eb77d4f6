// Package ingestion loads archive records into a document store.
//
// A Pipeline drives records from a RecordProducer through an Accumulator,
// which groups them into bounded batches per destination, and a Writer,
// which submits each batch as one unordered bulk write. Once the producer is
// exhausted and every batch of a destination has been acknowledged, the
// IndexBuilder creates that destination's secondary indexes.
//
// Per-record and per-index failures are absorbed and surfaced as counters in
// the RunSummary and as Events delivered to EventSinks. A destination whose
// store stays unreachable after retries is marked FAILED while the others
// continue. Only a producer failure aborts the run.
//
// With one worker the pipeline writes inline, one batch at a time. With more
// workers, batches are queued per destination and drained on an ants pool;
// batches of one destination are never written concurrently.
package ingestion
