package transport

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Outbox decouples Send from the network: chunks are queued and written
// by one goroutine, so callers never block on the socket. When the queue
// is full the chunk is dropped.
type Outbox struct {
	write  func(MediaChunk) error
	logger *slog.Logger

	queue   chan MediaChunk
	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
	onError func(error)
}

// NewOutbox starts a writer goroutine calling write for each chunk.
// onError, if set, is called once on the first write failure, after which
// the outbox stops writing.
func NewOutbox(size int, write func(MediaChunk) error, onError func(error), logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = 1
	}
	o := &Outbox{
		write:   write,
		logger:  logger,
		queue:   make(chan MediaChunk, size),
		done:    make(chan struct{}),
		onError: onError,
	}
	go o.run()
	return o
}

func (o *Outbox) run() {
	defer close(o.done)
	for chunk := range o.queue {
		if o.failed.Load() > 0 {
			continue
		}
		if err := o.write(chunk); err != nil {
			if o.failed.Add(1) == 1 {
				o.logger.Warn("outbound write failed", "kind", chunk.Kind, "error", err)
				if o.onError != nil {
					go o.onError(err)
				}
			}
			continue
		}
		o.sent.Add(1)
	}
}

// Push queues a chunk. It never blocks.
func (o *Outbox) Push(chunk MediaChunk) error {
	o.closeMu.RLock()
	defer o.closeMu.RUnlock()

	if o.closed {
		return ErrClosed
	}
	select {
	case o.queue <- chunk:
		return nil
	default:
		o.dropped.Add(1)
		return ErrQueueFull
	}
}

// Close stops accepting chunks. Queued chunks are discarded and Close
// waits for the writer to exit.
func (o *Outbox) Close() {
	o.closeMu.Lock()
	if o.closed {
		o.closeMu.Unlock()
		<-o.done
		return
	}
	o.closed = true
	o.failed.Add(1)
	close(o.queue)
	o.closeMu.Unlock()
	<-o.done
}

// Sent returns the number of chunks written.
func (o *Outbox) Sent() int64 { return o.sent.Load() }

// Dropped returns the number of chunks dropped on a full queue.
func (o *Outbox) Dropped() int64 { return o.dropped.Load() }
