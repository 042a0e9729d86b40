// Package queue wraps a broadcast channel with a stop flag so it can be
// drained at shutdown: stop accepting sends, then wait until every buffered
// message has been delivered.
package queue

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vinayprograms/drainkit/broadcast"
	"github.com/vinayprograms/drainkit/errors"
)

// ErrClosed is returned by Send once Stop has been called.
// It is permanent for the lifetime of the queue; callers should log and drop.
var ErrClosed = errors.FromCode(errors.ErrCodeClosed)

// Queue is a drainable broadcast queue. Safe for concurrent use.
type Queue[M any] struct {
	ch      *broadcast.Channel[M]
	stopped atomic.Bool
	logger  zerolog.Logger
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	logger      zerolog.Logger
	channelOpts []broadcast.Option
}

// WithLogger sets the logger used for rejected and failed sends.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDiscardWithoutReceivers treats a send with zero receivers as success.
func WithDiscardWithoutReceivers() Option {
	return func(o *options) {
		o.channelOpts = append(o.channelOpts, broadcast.WithDiscardWithoutReceivers())
	}
}

// New creates a queue retaining up to capacity undelivered messages.
func New[M any](capacity int, opts ...Option) *Queue[M] {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Queue[M]{
		ch:     broadcast.New[M](capacity, o.channelOpts...),
		logger: o.logger,
	}
}

// Send broadcasts msg to every subscriber.
// After Stop it fails with ErrClosed without touching the channel.
func (q *Queue[M]) Send(msg M) error {
	if q.stopped.Load() {
		q.logger.Warn().Msg("queue has been stopped, message dropped")
		return ErrClosed
	}
	if err := q.ch.Send(msg); err != nil {
		q.logger.Warn().Err(err).Msg("queue send failed")
		return err
	}
	return nil
}

// Subscribe returns a receiver for messages sent from now on.
func (q *Queue[M]) Subscribe() *broadcast.Receiver[M] {
	return q.ch.Subscribe()
}

// Stop rejects all further sends. Messages already buffered are still
// delivered. Stop is idempotent.
func (q *Queue[M]) Stop() {
	if q.stopped.CompareAndSwap(false, true) {
		q.logger.Debug().Int("buffered", q.ch.Len()).Msg("queue stopped")
	}
}

// Stopped reports whether Stop has been called.
func (q *Queue[M]) Stopped() bool {
	return q.stopped.Load()
}

// Len returns the number of buffered, undelivered messages.
func (q *Queue[M]) Len() int {
	return q.ch.Len()
}

// IsEmpty reports whether no buffered message remains undelivered.
// After Stop, IsEmpty becoming true means the queue is drained.
func (q *Queue[M]) IsEmpty() bool {
	return q.ch.IsEmpty()
}

// WaitEmpty blocks until IsEmpty is true or ctx is done.
func (q *Queue[M]) WaitEmpty(ctx context.Context) error {
	return q.ch.WaitEmpty(ctx)
}

// Close stops the queue and closes the underlying channel so subscribers
// finish reading what is buffered and then receive broadcast.ErrClosed.
func (q *Queue[M]) Close() error {
	q.Stop()
	q.ch.Close()
	return nil
}

// Drain stops the queue, waits for every buffered message to be delivered
// and then closes it. If ctx ends first the queue stays stopped but open and
// ctx.Err() is returned.
func (q *Queue[M]) Drain(ctx context.Context) error {
	q.Stop()
	if err := q.WaitEmpty(ctx); err != nil {
		q.logger.Warn().Int("undelivered", q.Len()).Err(err).Msg("queue drain interrupted")
		return err
	}
	return q.Close()
}
