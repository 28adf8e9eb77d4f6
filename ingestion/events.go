package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Level is the severity of an Event.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// slogLevel maps l onto the matching slog level.
func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EventKind identifies what happened.
type EventKind int

const (
	EventRunStarted EventKind = iota
	EventDestinationDiscovered
	EventRecordSkipped
	EventBatchSubmitted
	EventBatchWritten
	EventBatchPartial
	EventBatchRetry
	EventBatchFailed
	EventBatchDiscarded
	EventIndexStarted
	EventIndexBuilt
	EventIndexFailed
	EventDestinationDone
	EventDestinationFailed
	EventDestinationInterrupted
	EventRunFinished
)

var eventKindNames = [...]string{
	EventRunStarted:             "run_started",
	EventDestinationDiscovered:  "destination_discovered",
	EventRecordSkipped:          "record_skipped",
	EventBatchSubmitted:         "batch_submitted",
	EventBatchWritten:           "batch_written",
	EventBatchPartial:           "batch_partial",
	EventBatchRetry:             "batch_retry",
	EventBatchFailed:            "batch_failed",
	EventBatchDiscarded:         "batch_discarded",
	EventIndexStarted:           "index_started",
	EventIndexBuilt:             "index_built",
	EventIndexFailed:            "index_failed",
	EventDestinationDone:        "destination_done",
	EventDestinationFailed:      "destination_failed",
	EventDestinationInterrupted: "destination_interrupted",
	EventRunFinished:            "run_finished",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a progress or warning notification emitted during a run.
// Batch events carry the batch sequence number and document counts;
// index events carry the index name in Index.
type Event struct {
	Time        time.Time
	Level       Level
	Kind        EventKind
	Destination string
	Seq         int
	Index       string
	Message     string
	Accepted    int
	Rejected    int
	Duration    time.Duration
	Err         error
}

// EventSink consumes events. The pipeline delivers events to a sink one at a
// time, so sinks need no locking of their own for pipeline events.
type EventSink interface {
	HandleEvent(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) HandleEvent(e Event) { f(e) }

// logSink writes events to a slog.Logger.
type logSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink that logs every event at its level.
// Batch submissions are logged at debug level.
func NewLogSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &logSink{logger: logger}
}

func (s *logSink) HandleEvent(e Event) {
	level := e.Level.slogLevel()
	if e.Kind == EventBatchSubmitted {
		level = slog.LevelDebug
	}
	if !s.logger.Enabled(context.Background(), level) {
		return
	}

	attrs := []any{"event", e.Kind.String()}
	if e.Destination != "" {
		attrs = append(attrs, "destination", e.Destination)
	}
	if e.Seq > 0 {
		attrs = append(attrs, "batch", e.Seq)
	}
	if e.Index != "" {
		attrs = append(attrs, "index", e.Index)
	}
	if e.Accepted > 0 || e.Rejected > 0 {
		attrs = append(attrs, "accepted", e.Accepted, "rejected", e.Rejected)
	}
	if e.Duration > 0 {
		attrs = append(attrs, "duration", e.Duration)
	}
	if e.Err != nil {
		attrs = append(attrs, "err", e.Err)
	}
	s.logger.Log(context.Background(), level, e.Message, attrs...)
}

// multiSink fans events out to several sinks in order.
type multiSink []EventSink

func (m multiSink) HandleEvent(e Event) {
	for _, s := range m {
		s.HandleEvent(e)
	}
}
