package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poiesic/docloader/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, s *Sink) string {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestSink_HandleEvent(t *testing.T) {
	s := NewSink()

	s.HandleEvent(ingestion.Event{Kind: ingestion.EventBatchWritten, Destination: "a", Accepted: 8000, Duration: 40 * time.Millisecond})
	s.HandleEvent(ingestion.Event{Kind: ingestion.EventBatchPartial, Destination: "a", Accepted: 9, Rejected: 1})
	s.HandleEvent(ingestion.Event{Kind: ingestion.EventBatchRetry, Destination: "b"})
	s.HandleEvent(ingestion.Event{Kind: ingestion.EventBatchDiscarded, Destination: "b", Rejected: 3})
	s.HandleEvent(ingestion.Event{Kind: ingestion.EventBatchFailed, Destination: "b", Rejected: 2})
	s.HandleEvent(ingestion.Event{Kind: ingestion.EventBatchFailed, Destination: "c", Rejected: 5})
	s.HandleEvent(ingestion.Event{Kind: ingestion.EventRecordSkipped})
	s.HandleEvent(ingestion.Event{Kind: ingestion.EventIndexBuilt, Destination: "a", Index: "_source_file_1"})
	s.HandleEvent(ingestion.Event{Kind: ingestion.EventIndexFailed, Destination: "a", Index: "factura_num_1"})
	s.HandleEvent(ingestion.Event{Kind: ingestion.EventDestinationDone, Destination: "a"})
	s.HandleEvent(ingestion.Event{Kind: ingestion.EventDestinationFailed, Destination: "b"})

	out := scrape(t, s)
	assert.Contains(t, out, `docloader_documents_loaded_total{destination="a"} 8009`)
	assert.Contains(t, out, `docloader_documents_rejected_total{destination="a"} 1`)
	assert.Contains(t, out, `docloader_batches_total{destination="a",outcome="written"} 1`)
	assert.Contains(t, out, `docloader_batches_total{destination="a",outcome="partial"} 1`)
	assert.Contains(t, out, `docloader_batch_retries_total{destination="b"} 1`)
	assert.Contains(t, out, `docloader_documents_discarded_total{destination="b"} 5`)
	assert.Contains(t, out, `docloader_documents_discarded_total{destination="c"} 5`)
	assert.Contains(t, out, `docloader_batches_total{destination="c",outcome="failed"} 1`)
	assert.Contains(t, out, `docloader_records_skipped_total 1`)
	assert.Contains(t, out, `docloader_indexes_total{destination="a",outcome="built"} 1`)
	assert.Contains(t, out, `docloader_indexes_total{destination="a",outcome="failed"} 1`)
	assert.Contains(t, out, `docloader_destinations_finished_total{state="done"} 1`)
	assert.Contains(t, out, `docloader_destinations_finished_total{state="failed"} 1`)
	assert.Contains(t, out, `docloader_batch_write_duration_seconds_count{destination="a"} 2`)
}

func TestSink_PrivateRegistries(t *testing.T) {
	a, b := NewSink(), NewSink()
	a.HandleEvent(ingestion.Event{Kind: ingestion.EventRecordSkipped})

	assert.Contains(t, scrape(t, a), "docloader_records_skipped_total 1")
	assert.Contains(t, scrape(t, b), "docloader_records_skipped_total 0")
}
