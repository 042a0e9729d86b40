package bus

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vinayprograms/drainkit/broadcast"
	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/shutdown"
)

// Bus is a typed event bus over a Backend.
type Bus[M any] struct {
	name    string
	backend Backend[M]
	logger  zerolog.Logger
}

// Option configures a Bus.
type Option func(*busOptions)

type busOptions struct {
	logger zerolog.Logger
}

// WithLogger sets the bus logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *busOptions) {
		o.logger = logger
	}
}

// New creates a bus named name over backend.
func New[M any](name string, backend Backend[M], opts ...Option) *Bus[M] {
	o := busOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Bus[M]{
		name:    name,
		backend: backend,
		logger:  o.logger.With().Str("bus", name).Logger(),
	}
}

// Name returns the bus name.
func (b *Bus[M]) Name() string {
	return b.name
}

// Backend returns the underlying backend.
func (b *Bus[M]) Backend() Backend[M] {
	return b.backend
}

// Send publishes msg to every subscriber. The backend logs rejected sends;
// the bus only records them at debug level.
func (b *Bus[M]) Send(msg M) error {
	if err := b.backend.Send(msg); err != nil {
		b.logger.Debug().Err(err).Msg("event send rejected")
		return err
	}
	b.logger.Debug().Msg("event sent")
	return nil
}

// Subscribe returns a receiver for every event sent from now on.
func (b *Bus[M]) Subscribe() *broadcast.Receiver[M] {
	b.logger.Debug().Msg("subscriber added")
	return b.backend.Subscribe()
}

// SubscribeFunc returns a receiver that only yields events for which
// selector returns true.
func (b *Bus[M]) SubscribeFunc(selector func(M) bool) *FilteredReceiver[M] {
	return &FilteredReceiver[M]{
		Receiver: b.Subscribe(),
		selector: selector,
	}
}

// Stop rejects further sends. Buffered events are still delivered.
func (b *Bus[M]) Stop() {
	if b.backend.Stopped() {
		return
	}
	b.backend.Stop()
	b.logger.Info().Int("buffered", b.backend.Len()).Msg("event bus stopped")
}

// IsEmpty reports whether every buffered event has been delivered.
func (b *Bus[M]) IsEmpty() bool {
	return b.backend.IsEmpty()
}

// Close stops the bus and ends every subscription once it has read what is
// buffered.
func (b *Bus[M]) Close() error {
	return b.backend.Close()
}

// DrainHook returns a shutdown hook that stops the bus, waits until every
// buffered event has been delivered and then closes it.
func (b *Bus[M]) DrainHook() shutdown.Hook {
	return shutdown.HookFunc(func(ctx context.Context) error {
		start := time.Now()
		b.Stop()
		if err := b.backend.Drain(ctx); err != nil {
			b.logger.Warn().Err(err).Int("undelivered", b.backend.Len()).Msg("event bus drain incomplete")
			return err
		}
		b.logger.Info().Dur("elapsed", time.Since(start)).Msg("event bus drained")
		return nil
	})
}

// FilteredReceiver yields only the events accepted by its selector.
type FilteredReceiver[M any] struct {
	*broadcast.Receiver[M]
	selector func(M) bool
}

// Recv returns the next selected event. Lag and close errors are returned
// as from broadcast.Receiver.Recv.
func (r *FilteredReceiver[M]) Recv(ctx context.Context) (M, error) {
	for {
		msg, err := r.Receiver.Recv(ctx)
		if err != nil || r.selector(msg) {
			return msg, err
		}
	}
}

// TryRecv returns the next selected event that is ready, or
// broadcast.ErrEmpty.
func (r *FilteredReceiver[M]) TryRecv() (M, error) {
	for {
		msg, err := r.Receiver.TryRecv()
		if err != nil || r.selector(msg) {
			return msg, err
		}
	}
}

// IsLagged reports whether err says the receiver fell behind.
func IsLagged(err error) bool {
	return errors.HasCode(err, errors.ErrCodeLagged)
}
