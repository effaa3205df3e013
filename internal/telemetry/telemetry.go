package telemetry

// #region imports
import (
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// #endregion

// #region event

// Severity classifies how urgently an event needs operator attention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one control-plane occurrence: a state transition, a repair
// attempt, or a gate decision.
type Event struct {
	EventID   string
	Component string
	Operation string
	Duration  time.Duration
	Success   bool
	Severity  Severity
	Metadata  map[string]string
	Timestamp time.Time
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(component, operation string, duration time.Duration, success bool) Event {
	return Event{
		EventID:   uuid.New().String(),
		Component: component,
		Operation: operation,
		Duration:  duration,
		Success:   success,
		Severity:  SeverityInfo,
		Timestamp: time.Now().UTC(),
	}
}

// #endregion event

// #region sink

// Sink receives telemetry events. Implementations must not block the caller;
// the control plane emits fire-and-forget.
type Sink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Emit(e Event) {
	log.Printf("[TELEMETRY] component=%s op=%s success=%v severity=%s duration=%s",
		e.Component, e.Operation, e.Success, e.Severity, e.Duration)
}

// #endregion sink

// #region async-sink

// AsyncSink decouples emitters from a possibly slow downstream sink.
// Emit never blocks: when the buffer is full the event is dropped and
// counted.
type AsyncSink struct {
	events  chan Event
	done    chan struct{}
	dropped atomic.Int64
}

// NewAsyncSink starts a drain goroutine feeding inner.
func NewAsyncSink(inner Sink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for e := range s.events {
			inner.Emit(e)
		}
	}()
	return s
}

// Emit enqueues the event, dropping it if the buffer is full.
func (s *AsyncSink) Emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded due to backpressure.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops the drain goroutine after flushing buffered events.
func (s *AsyncSink) Close() {
	close(s.events)
	<-s.done
}

// #endregion async-sink
