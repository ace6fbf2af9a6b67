package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Event is the audit record emitted by the engine for every token operation.
type Event struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	PrincipalID string            `json:"principal_id,omitempty"`
	IP          string            `json:"ip,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
}

// LogrSink logs each event as one structured line. Failed operations are
// logged at verbosity 0, successful ones at Verbosity.
type LogrSink struct {
	logger    logr.Logger
	Verbosity int
}

// NewLogrSink wraps logger; a zero logger discards events.
func NewLogrSink(logger logr.Logger) *LogrSink {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &LogrSink{logger: logger.WithName("audit"), Verbosity: 1}
}

func (s *LogrSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}
	kv := []any{
		"id", event.ID,
		"event", event.EventType,
		"principal", event.PrincipalID,
		"success", event.Success,
	}
	if event.IP != "" {
		kv = append(kv, "ip", event.IP)
	}
	if event.RequestID != "" {
		kv = append(kv, "request_id", event.RequestID)
	}
	if event.Error != "" {
		kv = append(kv, "error", event.Error)
	}
	for k, v := range event.Metadata {
		kv = append(kv, k, v)
	}

	if event.Success {
		s.logger.V(s.Verbosity).Info("token event", kv...)
		return
	}
	s.logger.Info("token event", kv...)
}
