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

// Package metrics exposes pipeline events as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/poiesic/docloader/ingestion"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docloader"

const (
	MetricDocumentsLoaded   = "documents_loaded_total"
	MetricDocumentsRejected = "documents_rejected_total"
	MetricDocumentsDropped  = "documents_discarded_total"
	MetricBatches           = "batches_total"
	MetricBatchRetries      = "batch_retries_total"
	MetricBatchDuration     = "batch_write_duration_seconds"
	MetricRecordsSkipped    = "records_skipped_total"
	MetricIndexes           = "indexes_total"
	MetricDestinations      = "destinations_finished_total"
)

// Sink is an ingestion.EventSink recording run events on its own registry.
type Sink struct {
	registry *prometheus.Registry

	loaded        *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	discarded     *prometheus.CounterVec
	batches       *prometheus.CounterVec
	retries       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	skipped       prometheus.Counter
	indexes       *prometheus.CounterVec
	destinations  *prometheus.CounterVec
}

var _ ingestion.EventSink = (*Sink)(nil)

// NewSink creates a sink with a private registry, so several sinks can coexist.
func NewSink() *Sink {
	s := &Sink{
		registry: prometheus.NewRegistry(),
		loaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricDocumentsLoaded,
			Help:      "Documents accepted by the store.",
		}, []string{"destination"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricDocumentsRejected,
			Help:      "Documents rejected by the store within partially written batches.",
		}, []string{"destination"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricDocumentsDropped,
			Help:      "Documents of batches dropped without a successful write.",
		}, []string{"destination"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricBatches,
			Help:      "Settled batches by outcome.",
		}, []string{"destination", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricBatchRetries,
			Help:      "Batch write attempts retried because the store was unavailable.",
		}, []string{"destination"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricBatchDuration,
			Help:      "Time spent writing one batch, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"destination"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRecordsSkipped,
			Help:      "Archive entries skipped because they could not be decoded.",
		}),
		indexes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricIndexes,
			Help:      "Index builds by outcome.",
		}, []string{"destination", "outcome"}),
		destinations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricDestinations,
			Help:      "Destinations by final state.",
		}, []string{"state"}),
	}

	s.registry.MustRegister(
		s.loaded, s.rejected, s.discarded, s.batches, s.retries,
		s.batchDuration, s.skipped, s.indexes, s.destinations,
	)
	return s
}

// HandleEvent updates the metrics matching e.
func (s *Sink) HandleEvent(e ingestion.Event) {
	switch e.Kind {
	case ingestion.EventBatchWritten, ingestion.EventBatchPartial:
		outcome := "written"
		if e.Kind == ingestion.EventBatchPartial {
			outcome = "partial"
		}
		s.loaded.WithLabelValues(e.Destination).Add(float64(e.Accepted))
		s.rejected.WithLabelValues(e.Destination).Add(float64(e.Rejected))
		s.batches.WithLabelValues(e.Destination, outcome).Inc()
		s.batchDuration.WithLabelValues(e.Destination).Observe(e.Duration.Seconds())
	case ingestion.EventBatchFailed:
		s.discarded.WithLabelValues(e.Destination).Add(float64(e.Rejected))
		s.batches.WithLabelValues(e.Destination, "failed").Inc()
	case ingestion.EventBatchDiscarded:
		s.discarded.WithLabelValues(e.Destination).Add(float64(e.Rejected))
		s.batches.WithLabelValues(e.Destination, "discarded").Inc()
	case ingestion.EventBatchRetry:
		s.retries.WithLabelValues(e.Destination).Inc()
	case ingestion.EventRecordSkipped:
		s.skipped.Inc()
	case ingestion.EventIndexBuilt:
		s.indexes.WithLabelValues(e.Destination, "built").Inc()
	case ingestion.EventIndexFailed:
		s.indexes.WithLabelValues(e.Destination, "failed").Inc()
	case ingestion.EventDestinationDone:
		s.destinations.WithLabelValues("done").Inc()
	case ingestion.EventDestinationFailed:
		s.destinations.WithLabelValues("failed").Inc()
	case ingestion.EventDestinationInterrupted:
		s.destinations.WithLabelValues("interrupted").Inc()
	}
}

// Registry returns the registry holding the sink's collectors.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns an http.Handler serving the /metrics scrape endpoint.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
