package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryTransport implements Transport with in-process channels.
// Useful for tests and single-process deployments.
type MemoryTransport struct {
	config Config

	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed atomic.Bool
}

type memorySub struct {
	subject   string
	ch        chan *Message
	closed    atomic.Bool
	transport *MemoryTransport
}

// NewMemoryTransport creates a new in-memory transport.
func NewMemoryTransport(cfg Config) *MemoryTransport {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	return &MemoryTransport{
		config: cfg,
		subs:   make(map[string][]*memorySub),
	}
}

// Publish sends data to all subscribers of subject.
func (t *MemoryTransport) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed.Load() {
		return ErrClosed
	}

	for _, sub := range t.subs[subject] {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.ch <- &Message{Subject: subject, Data: data}:
		default:
			// Buffer full, drop message
		}
	}
	return nil
}

// Subscribe creates a subscription to subject.
func (t *MemoryTransport) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySub{
		subject:   subject,
		ch:        make(chan *Message, t.config.BufferSize),
		transport: t,
	}
	t.subs[subject] = append(t.subs[subject], sub)

	return sub, nil
}

// Close shuts down the transport and ends every subscription.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Swap(true) {
		return nil
	}

	for _, subs := range t.subs {
		for _, sub := range subs {
			if !sub.closed.Swap(true) {
				close(sub.ch)
			}
		}
	}
	t.subs = nil

	return nil
}

// Messages returns the message channel.
func (s *memorySub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe cancels the subscription.
func (s *memorySub) Unsubscribe() error {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	subs := s.transport.subs[s.subject]
	for i, sub := range subs {
		if sub == s {
			s.transport.subs[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	close(s.ch)
	return nil
}
