package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher hands events to a sink from one goroutine, so the sink sees
// them in the order Emit accepted them.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	// mu guards queue against close while an Emit is sending.
	mu     sync.RWMutex
	shut   bool
	queue  chan Event
	idle   chan struct{}
	drops  atomic.Uint64
	clock  func() time.Time
	closer sync.Once
}

// NewDispatcher starts delivery and returns nil when cfg is disabled. A nil
// *Dispatcher accepts every call and does nothing.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size < 1 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, size),
		idle:       make(chan struct{}),
		clock:      time.Now,
	}
	go d.deliver()
	return d
}

func (d *Dispatcher) deliver() {
	defer close(d.idle)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit fills in a missing ID and timestamp and queues event. When the buffer
// is full it either counts a drop (DropIfFull) or waits for room or ctx.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.clock().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.shut {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.drops.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	}
}

// Close rejects further events and returns once everything queued has
// reached the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closer.Do(func() {
		d.mu.Lock()
		d.shut = true
		close(d.queue)
		d.mu.Unlock()
		<-d.idle
	})
}

// Dropped reports events discarded on a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.drops.Load()
}
