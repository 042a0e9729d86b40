package clusterevent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vinayprograms/drainkit/bus"
	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/queue"
)

// BusName is the name the cluster event bus registers and logs under.
const BusName = "cluster events"

// Codec is the wire codec for mirrored events.
var Codec bus.Codec[Event] = bus.MsgpackCodec[Event]{}

// NewSender creates the cluster event bus over backend.
func NewSender(backend bus.Backend[Event], logger zerolog.Logger) *bus.Bus[Event] {
	return bus.New[Event](BusName, backend, bus.WithLogger(logger))
}

// NewLocalSender creates a cluster event bus backed by an in-process queue.
func NewLocalSender(capacity int, logger zerolog.Logger) *bus.Bus[Event] {
	queueLogger := logger.With().Str("bus", BusName).Logger()
	return NewSender(bus.NewLocal[Event](capacity, queue.WithLogger(queueLogger)), logger)
}

// Receiver is satisfied by broadcast.Receiver and bus.FilteredReceiver.
type Receiver interface {
	Recv(ctx context.Context) (Event, error)
}

// Handler processes one event. A returned error is logged and consumption
// continues.
type Handler func(ctx context.Context, e Event) error

// Consume reads events from r until the bus is closed or ctx is done.
// A lagged receiver logs how many events it missed and keeps going.
// Consume returns nil when the bus closes and ctx.Err() on cancellation.
func Consume(ctx context.Context, r Receiver, handle Handler, logger zerolog.Logger) error {
	for {
		e, err := r.Recv(ctx)
		if err != nil {
			if n, ok := errors.LaggedCount(err); ok {
				logger.Warn().Uint64("skipped", n).Msg("cluster event receiver lagged")
				continue
			}
			if errors.HasCode(err, errors.ErrCodeClosed) {
				logger.Debug().Msg("cluster event bus closed")
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		if err := handle(ctx, e); err != nil {
			logger.Error().
				Err(err).
				Str("event_id", e.ID).
				Str("kind", string(e.Kind)).
				Msg("cluster event handler failed")
		}
	}
}
