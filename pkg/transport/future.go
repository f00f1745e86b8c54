package transport

import (
	"context"
	"sync"
)

// maxPending bounds chunks buffered while the connection is still pending.
const maxPending = 64

// Future is the single-assignment handle to a connecting session. Every
// send path shares it; chunks sent before it resolves are buffered and
// flushed in order once the session exists.
type Future struct {
	done chan struct{}

	mu           sync.Mutex
	resolved     bool
	sess         Session
	err          error
	pending      []MediaChunk
	dropped      int
	closeOnReady bool
}

// NewFuture creates an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future already resolved with sess or err.
func Resolved(sess Session, err error) *Future {
	f := NewFuture()
	f.Resolve(sess, err)
	return f
}

// Resolve assigns the outcome. Only the first call has effect; it returns
// false for later calls.
func (f *Future) Resolve(sess Session, err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.resolved = true
	f.sess, f.err = sess, err

	pending := f.pending
	f.pending = nil
	closeNow := f.closeOnReady

	ok := err == nil && sess != nil
	if ok && !closeNow {
		// Flushed under the lock so later sends cannot overtake them.
		for _, c := range pending {
			sess.Send(c)
		}
	}
	f.mu.Unlock()

	close(f.done)
	if ok && closeNow {
		sess.Close()
	}
	return true
}

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess, f.err
}

// Session returns the session if the future resolved successfully.
func (f *Future) Session() (Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess, f.resolved && f.err == nil && f.sess != nil
}

// Err returns the connect error, or nil if pending or successful.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Send transmits a chunk without waiting. Before resolution the chunk is
// buffered; after a failed connect it returns the connect error.
func (f *Future) Send(chunk MediaChunk) error {
	f.mu.Lock()
	if !f.resolved {
		if f.closeOnReady {
			f.mu.Unlock()
			return ErrClosed
		}
		if len(f.pending) >= maxPending {
			f.dropped++
			f.mu.Unlock()
			return ErrQueueFull
		}
		f.pending = append(f.pending, chunk)
		f.mu.Unlock()
		return nil
	}
	sess, err := f.sess, f.err
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNotConnected
	}
	return sess.Send(chunk)
}

// Close closes the session, now if resolved or as soon as it resolves.
// Buffered chunks are discarded.
func (f *Future) Close() error {
	f.mu.Lock()
	if !f.resolved {
		f.closeOnReady = true
		f.pending = nil
		f.mu.Unlock()
		return nil
	}
	sess := f.sess
	f.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.Close()
}

// Dropped returns how many chunks were dropped while pending.
func (f *Future) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}
