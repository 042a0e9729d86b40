package bus

import (
	"context"

	"github.com/vinayprograms/drainkit/errors"
)

// Transport errors.
var (
	ErrClosed         = errors.New(errors.ErrCodeClosed, "transport closed")
	ErrInvalidSubject = errors.New(errors.ErrCodeInvalidConfig, "invalid subject")
)

// Message is a payload received from a Transport.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the message payload.
	Data []byte
}

// Transport carries encoded messages between processes.
type Transport interface {
	// Publish sends data to every subscriber of subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe creates a subscription to subject.
	Subscribe(subject string) (Subscription, error)

	// Close shuts down the transport connection.
	Close() error
}

// Subscription represents an active transport subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// The channel is closed when the subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common transport configuration.
type Config struct {
	// BufferSize for subscription channels. A full buffer drops messages.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks if a subject is valid.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	return nil
}
