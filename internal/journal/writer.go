package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smallnest/chanx"
)

const sendTimeout = 5 * time.Second

// Writer decouples event producers from the sink. Enqueue never blocks;
// a background goroutine drains the queue into the sink one event at a
// time. Send failures are logged and do not stop the drain.
type Writer struct {
	sink Sink
	log  *slog.Logger

	mu     sync.RWMutex
	closed bool

	in   *chanx.UnboundedChan[Event]
	done chan struct{}
}

// NewWriter starts the drain goroutine. Close must be called to flush
// queued events and close the sink.
func NewWriter(sink Sink, log *slog.Logger) *Writer {
	w := &Writer{
		sink: sink,
		log:  log,
		in:   chanx.NewUnboundedChan[Event](context.Background(), 64),
		done: make(chan struct{}),
	}
	go w.drain()
	return w
}

// Enqueue queues an event for delivery. Events enqueued after Close are
// dropped. A zero OccurredAt is stamped with the current time.
func (w *Writer) Enqueue(e Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	w.in.In <- e
}

// Close drains queued events, stops the goroutine and closes the sink.
// Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.in.In)
	w.mu.Unlock()

	<-w.done
	return w.sink.Close()
}

func (w *Writer) drain() {
	defer close(w.done)
	for e := range w.in.Out {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := w.sink.Send(ctx, e); err != nil {
			w.log.Warn("journal send failed", "type", e.Type, "error", err)
		}
		cancel()
	}
}
