package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Unit Tests ---

func TestValidateSubject(t *testing.T) {
	tests := []struct {
		subject string
		wantErr bool
	}{
		{"foo", false},
		{"foo.bar", false},
		{"foo.bar.baz", false},
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateSubject(tt.subject)
		assert.Equal(t, tt.wantErr, err != nil, "ValidateSubject(%q) = %v", tt.subject, err)
	}
}

func TestMemoryTransport_PublishWithoutSubscribers(t *testing.T) {
	tr := NewMemoryTransport(DefaultConfig())
	defer tr.Close()

	assert.NoError(t, tr.Publish(context.Background(), "test", []byte("hello")))
}

func TestMemoryTransport_PublishInvalidSubject(t *testing.T) {
	tr := NewMemoryTransport(DefaultConfig())
	defer tr.Close()

	assert.ErrorIs(t, tr.Publish(context.Background(), "", []byte("hello")), ErrInvalidSubject)
}

// --- Integration Tests ---

func TestMemoryTransport_Subscribe(t *testing.T) {
	tr := NewMemoryTransport(DefaultConfig())
	defer tr.Close()

	sub, err := tr.Subscribe("test")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, tr.Publish(context.Background(), "test", []byte("hello")))

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "hello", string(msg.Data))
		assert.Equal(t, "test", msg.Subject)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestMemoryTransport_MultipleSubscribers(t *testing.T) {
	tr := NewMemoryTransport(DefaultConfig())
	defer tr.Close()

	sub1, err := tr.Subscribe("test")
	require.NoError(t, err)
	sub2, err := tr.Subscribe("test")
	require.NoError(t, err)
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	require.NoError(t, tr.Publish(context.Background(), "test", []byte("hello")))

	for i, sub := range []Subscription{sub1, sub2} {
		select {
		case msg := <-sub.Messages():
			assert.Equal(t, "hello", string(msg.Data), "sub%d", i+1)
		case <-time.After(time.Second):
			t.Errorf("sub%d: timeout", i+1)
		}
	}
}

func TestMemoryTransport_SubjectIsolation(t *testing.T) {
	tr := NewMemoryTransport(DefaultConfig())
	defer tr.Close()

	sub, err := tr.Subscribe("a")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, tr.Publish(context.Background(), "b", []byte("other")))

	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected message on %q", msg.Subject)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryTransport_FullBufferDrops(t *testing.T) {
	tr := NewMemoryTransport(Config{BufferSize: 2})
	defer tr.Close()

	sub, err := tr.Subscribe("test")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		require.NoError(t, tr.Publish(context.Background(), "test", []byte{byte(i)}))
	}
	assert.Len(t, sub.Messages(), 2)
}

func TestMemoryTransport_Unsubscribe(t *testing.T) {
	tr := NewMemoryTransport(DefaultConfig())
	defer tr.Close()

	sub, err := tr.Subscribe("test")
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())

	_, ok := <-sub.Messages()
	assert.False(t, ok, "channel should be closed")

	assert.NoError(t, tr.Publish(context.Background(), "test", []byte("after")))
}

func TestMemoryTransport_Close(t *testing.T) {
	tr := NewMemoryTransport(DefaultConfig())

	sub, err := tr.Subscribe("test")
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, ok := <-sub.Messages()
	assert.False(t, ok, "channel should be closed")
	assert.NoError(t, sub.Unsubscribe())

	assert.ErrorIs(t, tr.Publish(context.Background(), "test", nil), ErrClosed)
	_, err = tr.Subscribe("test")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryTransport_PublishCanceled(t *testing.T) {
	tr := NewMemoryTransport(DefaultConfig())
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tr.Publish(ctx, "test", nil), context.Canceled)
}
