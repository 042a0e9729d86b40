package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTransport implements Transport using Redis PUBLISH/SUBSCRIBE.
type RedisTransport struct {
	client *redis.Client
	config RedisConfig
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Config

	// Addr is the Redis server address (host:port).
	Addr string

	// Password for AUTH, empty for none.
	Password string

	// DB selects the logical database.
	DB int

	// ConnectTimeout bounds the initial PING.
	ConnectTimeout time.Duration
}

// DefaultRedisConfig returns configuration with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Config:         DefaultConfig(),
		Addr:           "localhost:6379",
		ConnectTimeout: 5 * time.Second,
	}
}

// NewRedisTransport connects to Redis and verifies the connection.
func NewRedisTransport(ctx context.Context, cfg RedisConfig) (*RedisTransport, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultRedisConfig().ConnectTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.ConnectTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisTransportFromClient(client, cfg), nil
}

// NewRedisTransportFromClient wraps an existing client. The transport takes
// ownership and closes it on Close.
func NewRedisTransportFromClient(client *redis.Client, cfg RedisConfig) *RedisTransport {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultRedisConfig().ConnectTimeout
	}
	return &RedisTransport{client: client, config: cfg}
}

// Publish sends data to the subject channel.
func (t *RedisTransport) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if err := t.client.Publish(ctx, subject, data).Err(); err != nil {
		if err == redis.ErrClosed {
			return ErrClosed
		}
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe creates a subscription to the subject channel. It returns once
// Redis has confirmed the subscription.
func (t *RedisTransport) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.config.ConnectTimeout)
	defer cancel()

	ps := t.client.Subscribe(ctx, subject)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		if err == redis.ErrClosed {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	s := &redisSubscription{
		ps: ps,
		ch: make(chan *Message, t.config.BufferSize),
	}
	go s.forward()

	return s, nil
}

// Close closes the client. Unsubscribe subscriptions first.
func (t *RedisTransport) Close() error {
	if err := t.client.Close(); err != nil && err != redis.ErrClosed {
		return err
	}
	return nil
}

type redisSubscription struct {
	ps *redis.PubSub
	ch chan *Message
}

// forward copies pub/sub messages into ch until the PubSub is closed.
func (s *redisSubscription) forward() {
	defer close(s.ch)
	for m := range s.ps.Channel() {
		select {
		case s.ch <- &Message{Subject: m.Channel, Data: []byte(m.Payload)}:
		default:
			// Buffer full
		}
	}
}

// Messages returns the message channel.
func (s *redisSubscription) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe closes the PubSub; Messages is closed once forwarding stops.
func (s *redisSubscription) Unsubscribe() error {
	if err := s.ps.Close(); err != nil && err != redis.ErrClosed {
		return err
	}
	return nil
}
