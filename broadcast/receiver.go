package broadcast

import (
	"context"

	"github.com/vinayprograms/drainkit/errors"
)

// Receiver is one consumer's cursor into a Channel.
// A Receiver must not be used from more than one goroutine at a time.
type Receiver[M any] struct {
	ch     *Channel[M]
	next   uint64
	closed bool
}

// Recv returns the next message, blocking until one is sent, the channel is
// closed or ctx is done.
//
// If messages were overwritten before this receiver read them, Recv returns
// a LAGGED error (see errors.LaggedCount) and moves the cursor to the oldest
// retained message; the next call continues from there.
func (r *Receiver[M]) Recv(ctx context.Context) (M, error) {
	for {
		msg, wait, err := r.poll()
		if wait == nil {
			return msg, err
		}

		select {
		case <-wait:
		case <-ctx.Done():
			var zero M
			return zero, ctx.Err()
		}
	}
}

// TryRecv is the non-blocking form of Recv. It returns ErrEmpty when no
// message is ready.
func (r *Receiver[M]) TryRecv() (M, error) {
	msg, wait, err := r.poll()
	if wait != nil {
		return msg, ErrEmpty
	}
	return msg, err
}

// poll reads one message if available. When nothing is ready it returns the
// channel to wait on.
func (r *Receiver[M]) poll() (M, <-chan struct{}, error) {
	var zero M
	c := r.ch

	c.mu.Lock()
	defer c.mu.Unlock()

	if r.closed {
		return zero, nil, ErrClosed
	}

	if r.next < c.tail {
		if oldest := c.oldest(); r.next < oldest {
			missed := oldest - r.next
			r.next = oldest
			return zero, nil, errors.Lagged(missed)
		}

		msg := c.buf[r.next%uint64(len(c.buf))].val
		c.release(r.next)
		r.next++
		return msg, nil, nil
	}

	if c.closed {
		return zero, nil, ErrClosed
	}
	return zero, c.sent, nil
}

// Close unsubscribes the receiver and releases every message it has not
// read yet. Close is idempotent.
func (r *Receiver[M]) Close() {
	c := r.ch

	c.mu.Lock()
	defer c.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	start := r.next
	if oldest := c.oldest(); start < oldest {
		start = oldest
	}
	for seq := start; seq < c.tail; seq++ {
		c.release(seq)
	}
	c.receivers--
}
