package ingestion

import (
	"time"

	"github.com/poiesic/docloader/core"
)

// DestinationSummary reports what a run did to one destination.
type DestinationSummary struct {
	Destination    string                `json:"destination_id"`
	State          core.DestinationState `json:"state"`
	Observed       int                   `json:"documents_observed"`
	Loaded         int                   `json:"documents_loaded"`
	Rejected       int                   `json:"documents_rejected"`
	Discarded      int                   `json:"documents_discarded"`
	Batches        int                   `json:"batches"`
	Retries        int                   `json:"retries"`
	ElapsedSeconds float64               `json:"elapsed_seconds"`
	Throughput     float64               `json:"throughput_docs_per_sec"`
	IndexesBuilt   []string              `json:"indexes_built"`
	IndexFailures  []string              `json:"index_failures"`
	Interrupted    bool                  `json:"interrupted"`
	Error          string                `json:"error,omitempty"`

	started time.Time
}

// finish stamps elapsed time and throughput.
func (d *DestinationSummary) finish(now time.Time) {
	if d.started.IsZero() {
		return
	}
	elapsed := now.Sub(d.started).Seconds()
	d.ElapsedSeconds = elapsed
	if elapsed > 0 {
		d.Throughput = float64(d.Loaded) / elapsed
	}
}

// RunSummary aggregates a run. It is owned by the pipeline while the run is
// in progress and read-only once Run returns.
type RunSummary struct {
	StartedAt      time.Time             `json:"started_at"`
	ElapsedSeconds float64               `json:"elapsed_seconds"`
	Destinations   []*DestinationSummary `json:"destinations"`
	DecodeErrors   int                   `json:"decode_errors"`
	EntriesSkipped int                   `json:"entries_skipped"`
	Interrupted    bool                  `json:"interrupted"`
}

// Destination returns the summary of destination id, or nil.
func (s *RunSummary) Destination(id string) *DestinationSummary {
	for _, d := range s.Destinations {
		if d.Destination == id {
			return d
		}
	}
	return nil
}

// Loaded returns documents loaded per destination.
func (s *RunSummary) Loaded() map[string]int {
	out := make(map[string]int, len(s.Destinations))
	for _, d := range s.Destinations {
		out[d.Destination] = d.Loaded
	}
	return out
}

// TotalLoaded returns the documents loaded across destinations.
func (s *RunSummary) TotalLoaded() int {
	n := 0
	for _, d := range s.Destinations {
		n += d.Loaded
	}
	return n
}

// TotalRejected returns the documents rejected across destinations.
func (s *RunSummary) TotalRejected() int {
	n := 0
	for _, d := range s.Destinations {
		n += d.Rejected
	}
	return n
}

// Failed returns the destinations that ended in FAILED.
func (s *RunSummary) Failed() []string {
	var out []string
	for _, d := range s.Destinations {
		if d.State == core.StateFailed {
			out = append(out, d.Destination)
		}
	}
	return out
}
