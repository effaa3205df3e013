package telemetry

import (
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	delay  time.Duration
}

func (c *captureSink) Emit(e Event) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestNewEventDefaults(t *testing.T) {
	e := NewEvent("vault-core", "start", time.Second, true)
	if e.EventID == "" {
		t.Fatal("expected a generated event id")
	}
	if e.Severity != SeverityInfo {
		t.Fatalf("expected info severity, got %s", e.Severity)
	}
	if e.Timestamp.IsZero() {
		t.Fatal("expected a timestamp")
	}
}

func TestAsyncSinkDeliversAndFlushesOnClose(t *testing.T) {
	inner := &captureSink{}
	s := NewAsyncSink(inner, 16)

	for i := 0; i < 5; i++ {
		s.Emit(NewEvent("c", "op", 0, true))
	}
	s.Close()

	if got := inner.count(); got != 5 {
		t.Fatalf("expected 5 events after close, got %d", got)
	}
	if s.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", s.Dropped())
	}
}

func TestAsyncSinkNeverBlocksWhenFull(t *testing.T) {
	inner := &captureSink{delay: 50 * time.Millisecond}
	s := NewAsyncSink(inner, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Emit(NewEvent("c", "op", 0, true))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked under backpressure")
	}
	if s.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}
	s.Close()
}
