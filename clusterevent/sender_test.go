package clusterevent

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/drainkit/bus"
	"github.com/vinayprograms/drainkit/shutdown"
)

func TestNewUserEvent(t *testing.T) {
	before := time.Now().Add(-time.Millisecond)
	e := NewUserEvent("u-1", "created")

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, KindUser, e.Kind)
	require.NotNil(t, e.User)
	assert.Equal(t, "u-1", e.User.UserID)
	assert.True(t, e.Time().After(before))
	assert.True(t, IsUser(e))
	assert.NotEqual(t, e.ID, NewUserEvent("u-1", "created").ID)
}

func TestCodecRoundTrip(t *testing.T) {
	e := NewUserEvent("u-2", "deleted")
	data, err := Codec.Encode(e)
	require.NoError(t, err)

	got, err := Codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestConsume_DeliversUntilClosed(t *testing.T) {
	sender := NewLocalSender(DefaultCapacity, zerolog.Nop())
	r := sender.Subscribe()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- Consume(context.Background(), r, func(ctx context.Context, e Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, e.User.UserID)
			return nil
		}, zerolog.Nop())
	}()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, sender.Send(NewUserEvent(id, "updated")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sender.DrainHook().Run(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not exit on close")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestLocalSender_SendAfterStopWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLocalSender(4, zerolog.New(&buf).Level(zerolog.InfoLevel))
	_ = sender.Subscribe()

	sender.Stop()
	assert.Error(t, sender.Send(NewUserEvent("u-1", "login")))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, `"level":"warn"`), out)
	assert.Contains(t, out, "queue has been stopped, message dropped")
	assert.Contains(t, out, `"bus":"cluster events"`)
}

func TestConsume_LogsLagAndContinues(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLocalSender(2, zerolog.Nop())
	r := sender.Subscribe()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, sender.Send(NewUserEvent(id, "updated")))
	}
	require.NoError(t, sender.Close())

	var got []string
	err := Consume(context.Background(), r, func(ctx context.Context, e Event) error {
		got = append(got, e.User.UserID)
		return nil
	}, zerolog.New(&buf))

	assert.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)
	assert.Contains(t, buf.String(), "cluster event receiver lagged")
	assert.Contains(t, buf.String(), `"skipped":1`)
}

func TestConsume_HandlerErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLocalSender(4, zerolog.Nop())
	r := sender.Subscribe()

	require.NoError(t, sender.Send(NewUserEvent("a", "x")))
	require.NoError(t, sender.Send(NewUserEvent("b", "x")))
	require.NoError(t, sender.Close())

	calls := 0
	err := Consume(context.Background(), r, func(ctx context.Context, e Event) error {
		calls++
		return errors.New("handler down")
	}, zerolog.New(&buf))

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, buf.String(), "cluster event handler failed")
}

func TestConsume_ContextCanceled(t *testing.T) {
	sender := NewLocalSender(4, zerolog.Nop())
	r := sender.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Consume(ctx, r, func(context.Context, Event) error { return nil }, zerolog.Nop())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// Stopping the bus with three buffered events keeps it non-empty until every
// live subscription has read all three.
func TestStopWithBufferedEvents(t *testing.T) {
	sender := NewLocalSender(DefaultCapacity, zerolog.Nop())
	first := sender.Subscribe()
	second := sender.SubscribeFunc(IsUser)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, sender.Send(NewUserEvent(id, "updated")))
	}
	sender.Stop()
	assert.Error(t, sender.Send(NewUserEvent("d", "updated")))

	for i := 0; i < 3; i++ {
		assert.False(t, sender.IsEmpty())
		_, err := first.TryRecv()
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		assert.False(t, sender.IsEmpty())
		_, err := second.TryRecv()
		require.NoError(t, err)
	}
	assert.True(t, sender.IsEmpty())
}

func TestDrainThroughRegistry(t *testing.T) {
	registry, err := shutdown.New(shutdown.Config{})
	require.NoError(t, err)

	sender := NewLocalSender(DefaultCapacity, zerolog.Nop())
	r := sender.Subscribe()
	registry.RegisterAsync(BusName, sender.DrainHook())

	consumed := make(chan error, 1)
	go func() {
		consumed <- Consume(context.Background(), r, func(context.Context, Event) error {
			time.Sleep(2 * time.Millisecond)
			return nil
		}, zerolog.Nop())
	}()

	for i := 0; i < 10; i++ {
		require.NoError(t, sender.Send(NewUserEvent("u", "tick")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, registry.Shutdown(ctx))
	assert.True(t, sender.IsEmpty())
	require.NoError(t, <-consumed)
}

func TestMirroredSender(t *testing.T) {
	tr := bus.NewMemoryTransport(bus.DefaultConfig())
	defer tr.Close()

	local := NewLocalSender(8, zerolog.Nop())
	r := local.Subscribe()
	relay, err := bus.NewRelay[Event](tr, DefaultSubject, Codec, local.Backend())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	remote := NewSender(bus.NewMirrored[Event](8, tr, DefaultSubject, Codec), zerolog.Nop())
	e := NewUserEvent("u-9", "login")
	require.NoError(t, remote.Send(e))

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	got, err := r.Recv(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}
