// Package broadcast provides a bounded single-producer, multi-consumer
// broadcast channel.
//
// Every receiver sees every message sent after it subscribed, in order.
// The channel retains only the most recent capacity messages; a receiver
// that falls further behind is told how many it missed (a lag error) and
// resumes from the oldest retained message. Send never blocks on a slow
// receiver.
package broadcast

import (
	"context"
	"sync"

	"github.com/vinayprograms/drainkit/errors"
)

var (
	// ErrClosed is returned by Send after Close, and by Recv once a closed
	// channel has nothing left for the receiver.
	ErrClosed = errors.New(errors.ErrCodeClosed, "broadcast channel closed")

	// ErrNoReceivers is returned by Send when nobody is subscribed.
	ErrNoReceivers = errors.New(errors.ErrCodeSendFailed, "broadcast send with no receivers")

	// ErrEmpty is returned by TryRecv when no message is ready.
	ErrEmpty = errors.FromCode(errors.ErrCodeEmpty)
)

type slot[M any] struct {
	val M
	// rem counts receivers that still have to read this slot.
	rem int
}

// Channel is a bounded broadcast channel. Safe for concurrent use.
type Channel[M any] struct {
	mu        sync.Mutex
	buf       []slot[M]
	tail      uint64 // sequence number of the next message
	receivers int
	pending   int // slots with rem > 0
	closed    bool

	// sent is closed and replaced on every Send and on Close.
	sent chan struct{}
	// drained is closed whenever pending reaches zero.
	drained chan struct{}

	discardWithoutReceivers bool
}

// Option configures a Channel.
type Option func(*channelOptions)

type channelOptions struct {
	discardWithoutReceivers bool
}

// WithDiscardWithoutReceivers makes Send succeed silently when there are no
// receivers instead of returning ErrNoReceivers. The message is not retained.
func WithDiscardWithoutReceivers() Option {
	return func(o *channelOptions) {
		o.discardWithoutReceivers = true
	}
}

// New creates a channel retaining up to capacity messages.
// A capacity below 1 is treated as 1.
func New[M any](capacity int, opts ...Option) *Channel[M] {
	if capacity < 1 {
		capacity = 1
	}

	var o channelOptions
	for _, opt := range opts {
		opt(&o)
	}

	drained := make(chan struct{})
	close(drained)

	return &Channel[M]{
		buf:                     make([]slot[M], capacity),
		sent:                    make(chan struct{}),
		drained:                 drained,
		discardWithoutReceivers: o.discardWithoutReceivers,
	}
}

// Send delivers msg to every current receiver.
// With zero receivers it returns ErrNoReceivers (or nil under
// WithDiscardWithoutReceivers) and msg is dropped.
func (c *Channel[M]) Send(msg M) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.receivers == 0 {
		if c.discardWithoutReceivers {
			return nil
		}
		return ErrNoReceivers
	}

	// An unread slot being overwritten stays pending; its readers will
	// observe a lag.
	s := &c.buf[c.tail%uint64(len(c.buf))]
	if s.rem == 0 {
		if c.pending == 0 {
			c.drained = make(chan struct{})
		}
		c.pending++
	}
	s.val = msg
	s.rem = c.receivers
	c.tail++

	close(c.sent)
	c.sent = make(chan struct{})
	return nil
}

// Subscribe returns a receiver that observes messages sent from now on.
func (c *Channel[M]) Subscribe() *Receiver[M] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.receivers++
	return &Receiver[M]{ch: c, next: c.tail}
}

// Len returns the number of retained messages not yet read by every
// receiver that was subscribed when they were sent.
func (c *Channel[M]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// IsEmpty reports whether every retained message has been delivered.
// It does not look at how many receivers exist.
func (c *Channel[M]) IsEmpty() bool {
	return c.Len() == 0
}

// ReceiverCount returns the number of open receivers.
func (c *Channel[M]) ReceiverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receivers
}

// WaitEmpty blocks until IsEmpty is true or ctx is done.
func (c *Channel[M]) WaitEmpty(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.pending == 0 {
			c.mu.Unlock()
			return nil
		}
		drained := c.drained
		c.mu.Unlock()

		select {
		case <-drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the channel. Further sends fail with ErrClosed; receivers
// still read what is retained and then get ErrClosed. Close is idempotent.
func (c *Channel[M]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.sent)
}

// oldest returns the sequence number of the oldest retained message.
// Callers hold c.mu.
func (c *Channel[M]) oldest() uint64 {
	if c.tail <= uint64(len(c.buf)) {
		return 0
	}
	return c.tail - uint64(len(c.buf))
}

// release marks slot seq as read by one receiver. Callers hold c.mu.
func (c *Channel[M]) release(seq uint64) {
	s := &c.buf[seq%uint64(len(c.buf))]
	s.rem--
	if s.rem > 0 {
		return
	}
	var zero M
	s.val = zero
	c.pending--
	if c.pending == 0 {
		close(c.drained)
	}
}
