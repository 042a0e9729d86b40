package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vinayprograms/drainkit/broadcast"
	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/queue"
)

// Backend is the queue a Bus delivers through.
type Backend[M any] interface {
	Send(msg M) error
	Subscribe() *broadcast.Receiver[M]
	Stop()
	Stopped() bool
	IsEmpty() bool
	Len() int
	WaitEmpty(ctx context.Context) error
	Drain(ctx context.Context) error
	Close() error
}

var (
	_ Backend[struct{}] = (*queue.Queue[struct{}])(nil)
	_ Backend[struct{}] = (*Mirrored[struct{}])(nil)
)

// NewLocal creates an in-process backend.
func NewLocal[M any](capacity int, opts ...queue.Option) *queue.Queue[M] {
	return queue.New[M](capacity, opts...)
}

// Mirrored is an in-process queue that also publishes every accepted
// message to a Transport subject. Local delivery decides success; a failed
// publish is logged and does not fail Send.
type Mirrored[M any] struct {
	*queue.Queue[M]

	transport Transport
	subject   string
	codec     Codec[M]
	origin    string
	timeout   time.Duration
	logger    zerolog.Logger
}

// MirrorOption configures a Mirrored backend.
type MirrorOption func(*mirrorOptions)

type mirrorOptions struct {
	logger         zerolog.Logger
	publishTimeout time.Duration
}

// WithMirrorLogger sets the logger for the queue and for publish failures.
func WithMirrorLogger(logger zerolog.Logger) MirrorOption {
	return func(o *mirrorOptions) {
		o.logger = logger
	}
}

// WithPublishTimeout bounds each transport publish. Default: 5s.
func WithPublishTimeout(d time.Duration) MirrorOption {
	return func(o *mirrorOptions) {
		o.publishTimeout = d
	}
}

// NewMirrored creates a mirrored backend. The local queue accepts sends with
// no local subscribers since remote processes may still be listening.
func NewMirrored[M any](capacity int, transport Transport, subject string, codec Codec[M], opts ...MirrorOption) *Mirrored[M] {
	o := mirrorOptions{
		logger:         zerolog.Nop(),
		publishTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Mirrored[M]{
		Queue:     queue.New[M](capacity, queue.WithLogger(o.logger), queue.WithDiscardWithoutReceivers()),
		transport: transport,
		subject:   subject,
		codec:     codec,
		origin:    uuid.NewString(),
		timeout:   o.publishTimeout,
		logger:    o.logger,
	}
}

// Origin identifies this backend in mirrored envelopes.
func (m *Mirrored[M]) Origin() string {
	return m.origin
}

// Local returns the in-process queue without mirroring. Relay remote
// messages into it so they are not published again.
func (m *Mirrored[M]) Local() *queue.Queue[M] {
	return m.Queue
}

// Send delivers msg locally and then publishes it to the transport.
func (m *Mirrored[M]) Send(msg M) error {
	if err := m.Queue.Send(msg); err != nil {
		return err
	}

	payload, err := m.codec.Encode(msg)
	if err != nil {
		m.logger.Error().Err(err).Str("subject", m.subject).Msg("mirror encode failed")
		return nil
	}
	data, err := encodeEnvelope(m.origin, payload)
	if err != nil {
		m.logger.Error().Err(err).Str("subject", m.subject).Msg("mirror encode failed")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.transport.Publish(ctx, m.subject, data); err != nil {
		m.logger.Warn().Err(err).Str("subject", m.subject).Msg("mirror publish failed")
	}
	return nil
}

// Sender is the write side of a queue.
type Sender[M any] interface {
	Send(msg M) error
}

// RelayOption configures a Relay.
type RelayOption func(*relayOptions)

type relayOptions struct {
	logger     zerolog.Logger
	skipOrigin string
}

// WithRelayLogger sets the relay logger.
func WithRelayLogger(logger zerolog.Logger) RelayOption {
	return func(o *relayOptions) {
		o.logger = logger
	}
}

// WithSkipOrigin drops messages published by the given origin, typically the
// local Mirrored backend, so they are not delivered twice.
func WithSkipOrigin(origin string) RelayOption {
	return func(o *relayOptions) {
		o.skipOrigin = origin
	}
}

// Relay feeds messages mirrored by other processes into a local queue.
type Relay[M any] struct {
	sub    Subscription
	codec  Codec[M]
	target Sender[M]
	skip   string
	logger zerolog.Logger
}

// NewRelay subscribes to subject on transport. Messages are delivered to
// target once Run is called; the subscription is live when NewRelay returns.
func NewRelay[M any](transport Transport, subject string, codec Codec[M], target Sender[M], opts ...RelayOption) (*Relay[M], error) {
	o := relayOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	sub, err := transport.Subscribe(subject)
	if err != nil {
		return nil, err
	}

	return &Relay[M]{
		sub:    sub,
		codec:  codec,
		target: target,
		skip:   o.skipOrigin,
		logger: o.logger.With().Str("subject", subject).Logger(),
	}, nil
}

// Run delivers decoded messages into the target until ctx is done, the
// transport ends the subscription or the target stops accepting messages.
// Undecodable payloads are logged and skipped. Run unsubscribes before it
// returns and reports ctx.Err() on cancellation, nil otherwise.
func (r *Relay[M]) Run(ctx context.Context) error {
	defer r.sub.Unsubscribe()

	r.logger.Debug().Msg("relay started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug().Msg("relay stopped")
			return ctx.Err()
		case msg, ok := <-r.sub.Messages():
			if !ok {
				r.logger.Debug().Msg("relay subscription closed")
				return nil
			}
			if err := r.deliver(msg); err != nil {
				r.logger.Debug().Msg("relay target stopped")
				return nil
			}
		}
	}
}

// Close ends the subscription. A running Run returns nil.
func (r *Relay[M]) Close() error {
	return r.sub.Unsubscribe()
}

// deliver forwards one message. It returns an error only when the target is
// closed.
func (r *Relay[M]) deliver(msg *Message) error {
	env, err := decodeEnvelope(msg.Data)
	if err != nil {
		r.logger.Warn().Err(err).Msg("relay dropped malformed payload")
		return nil
	}
	if r.skip != "" && env.Origin == r.skip {
		return nil
	}
	v, err := r.codec.Decode(env.Payload)
	if err != nil {
		r.logger.Warn().Err(err).Msg("relay dropped malformed payload")
		return nil
	}

	if err := r.target.Send(v); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return err
		}
		r.logger.Warn().Err(err).Msg("relay delivery failed")
	}
	return nil
}
