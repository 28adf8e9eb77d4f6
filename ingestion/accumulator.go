package ingestion

import "github.com/poiesic/docloader/core"

// DefaultBatchSize is the batch capacity used when none is configured.
const DefaultBatchSize = 8000

// Accumulator groups records into bounded batches per destination.
// It keeps one open batch per destination; a batch is sealed when a record
// arrives for it while it is full, or when Flush is called.
// An Accumulator is not safe for concurrent use.
type Accumulator struct {
	capacity int
	open     map[string]*core.Batch
	seq      map[string]int
	order    []string // destinations in first-seen order
}

// NewAccumulator creates an accumulator sealing batches at capacity records.
// A capacity <= 0 selects DefaultBatchSize.
func NewAccumulator(capacity int) *Accumulator {
	if capacity <= 0 {
		capacity = DefaultBatchSize
	}
	return &Accumulator{
		capacity: capacity,
		open:     make(map[string]*core.Batch),
		seq:      make(map[string]int),
	}
}

// Capacity returns the maximum number of records per batch.
func (a *Accumulator) Capacity() int {
	return a.capacity
}

// Add appends rec to the open batch of its destination.
// If that batch is already full it is sealed and returned, and rec becomes
// the first record of a new batch. Otherwise Add returns nil.
func (a *Accumulator) Add(rec core.Record) *core.Batch {
	dest := rec.Destination()

	var sealed *core.Batch
	b, ok := a.open[dest]
	if ok && len(b.Records) >= a.capacity {
		sealed = b
		ok = false
	}
	if !ok {
		if _, seen := a.seq[dest]; !seen {
			a.order = append(a.order, dest)
		}
		a.seq[dest]++
		b = &core.Batch{
			Destination: dest,
			Seq:         a.seq[dest],
			Records:     make([]core.Record, 0, min(a.capacity, 256)),
		}
		a.open[dest] = b
	}
	b.Records = append(b.Records, rec)
	return sealed
}

// Flush seals every open batch in first-seen destination order.
// Destinations with no pending records produce no batch.
func (a *Accumulator) Flush() []*core.Batch {
	var out []*core.Batch
	for _, dest := range a.order {
		b, ok := a.open[dest]
		if !ok || len(b.Records) == 0 {
			continue
		}
		out = append(out, b)
		delete(a.open, dest)
	}
	return out
}

// Pending returns the number of records held in open batches.
func (a *Accumulator) Pending() int {
	n := 0
	for _, b := range a.open {
		n += len(b.Records)
	}
	return n
}
