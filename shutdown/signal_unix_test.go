//go:build !windows

package shutdown

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SignalStartsDrain(t *testing.T) {
	r, err := New(Config{
		PhaseTimeout:  time.Second,
		HandleSignals: true,
		Signals:       []os.Signal{syscall.SIGUSR1},
	})
	require.NoError(t, err)

	var calls int
	r.RegisterAsyncFunc("test", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not start on signal")
	}

	assert.Equal(t, 1, calls)
	assert.Equal(t, "user defined signal 1", r.Result().Trigger)
	assert.NoError(t, r.Err())
}

func TestTerminationSignals(t *testing.T) {
	assert.Equal(t, []os.Signal{os.Interrupt, syscall.SIGTERM}, terminationSignals())
}
