package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherStampsAndDelivers(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

	d.Emit(context.Background(), Event{EventType: "issue", PrincipalID: "alice", Success: true})
	d.Close()

	select {
	case ev := <-sink.Events():
		if ev.ID == "" || ev.Timestamp.IsZero() {
			t.Fatalf("event not stamped: %+v", ev)
		}
		if ev.EventType != "issue" || ev.PrincipalID != "alice" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event may be held by the sink and one by the buffer; the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh"})
	}
	if d.Dropped() < 8 {
		t.Fatalf("expected at least 8 drops, got %d", d.Dropped())
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherEmitAfterCloseIgnored(t *testing.T) {
	sink := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	d.Close()
	d.Close()

	d.Emit(context.Background(), Event{EventType: "late"})
	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event after close: %+v", ev)
	default:
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{ID: "e1", EventType: "revoke", PrincipalID: "bob", Success: true})

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid json line %q: %v", line, err)
	}
	if decoded["principal_id"] != "bob" || decoded["event_type"] != "revoke" {
		t.Fatalf("unexpected json %v", decoded)
	}
}

func TestLogrSinkVerbosity(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	logger := funcr.New(func(prefix, args string) {
		mu.Lock()
		lines = append(lines, prefix+" "+args)
		mu.Unlock()
	}, funcr.Options{Verbosity: 0})

	sink := NewLogrSink(logger)
	sink.Emit(context.Background(), Event{ID: "ok", EventType: "issue", Success: true})
	sink.Emit(context.Background(), Event{ID: "bad", EventType: "refresh", Error: "refresh_mismatch"})

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 1 {
		t.Fatalf("expected only the failure to be logged at V(0), got %v", lines)
	}
	if !strings.Contains(lines[0], "refresh_mismatch") || !strings.Contains(lines[0], "audit") {
		t.Fatalf("unexpected log line %q", lines[0])
	}
}
