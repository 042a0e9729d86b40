package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/drainkit/clusterevent"
	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/queue"
	"github.com/vinayprograms/drainkit/shutdown"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []clusterevent.Event
	err  error
}

func (f *fakeSender) Send(e clusterevent.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, e)
	return nil
}

type fixedState shutdown.State

func (s fixedState) State() shutdown.State { return shutdown.State(s) }

func newTestServer(events eventSender, state shutdown.State) *httpServer {
	return newHTTPServer("127.0.0.1:0", events, fixedState(state), zerolog.Nop())
}

func post(t *testing.T, s *httpServer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleEvent_Accepted(t *testing.T) {
	sender := &fakeSender{}
	s := newTestServer(sender, shutdown.StateRunning)

	rec := post(t, s, `{"user_id":"u-1","action":"login"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, sender.sent, 1)
	e := sender.sent[0]
	assert.Equal(t, resp["id"], e.ID)
	assert.Equal(t, clusterevent.KindUser, e.Kind)
	assert.Equal(t, "u-1", e.User.UserID)
	assert.Equal(t, "login", e.User.Action)
	assert.EqualValues(t, 1, s.accepted.Load())
}

func TestHandleEvent_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"user_id":`},
		{"missing action", `{"user_id":"u-1"}`},
		{"missing user", `{"action":"login"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			rec := post(t, newTestServer(sender, shutdown.StateRunning), tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, sender.sent)
		})
	}
}

func TestEventRequest_Validate(t *testing.T) {
	assert.NoError(t, eventRequest{UserID: "u-1", Action: "login"}.validate())

	err := eventRequest{UserID: "u-1"}.validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
	assert.False(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
	assert.False(t, errors.IsRetryable(err))
}

func TestHandleEvent_SendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bus stopped", queue.ErrClosed, http.StatusServiceUnavailable},
		{"no receivers", errors.New(errors.ErrCodeSendFailed, "no receivers"), http.StatusServiceUnavailable},
		{"unexpected", errors.New(errors.ErrCodeInternal, "boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, newTestServer(&fakeSender{err: tt.err}, shutdown.StateRunning),
				`{"user_id":"u-1","action":"login"}`)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		state shutdown.State
		code  int
	}{
		{shutdown.StateRunning, http.StatusOK},
		{shutdown.StateDrainingAsync, http.StatusServiceUnavailable},
		{shutdown.StateCompleted, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			s := newTestServer(&fakeSender{}, tt.state)
			rec := httptest.NewRecorder()
			s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.code, rec.Code)
			var resp healthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.state.String(), resp.State)
		})
	}
}

func TestShutdownHook_WaitsForInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := newHTTPServer("127.0.0.1:0", &fakeSender{}, fixedState(shutdown.StateRunning), zerolog.Nop())
	s.server.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusNoContent)
	})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- s.serve(l) }()

	respDone := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + l.Addr().String())
		if err != nil {
			respDone <- 0
			return
		}
		resp.Body.Close()
		respDone <- resp.StatusCode
	}()
	<-started

	hookDone := make(chan error, 1)
	go func() { hookDone <- s.shutdownHook(time.Second).Run(context.Background()) }()

	select {
	case <-hookDone:
		t.Fatal("shutdown returned while a request was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.NoError(t, <-hookDone)
	assert.Equal(t, http.StatusNoContent, <-respDone)
	assert.NoError(t, <-served)
}

func TestShutdownHook_Timeout(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	s := newHTTPServer("127.0.0.1:0", &fakeSender{}, fixedState(shutdown.StateRunning), zerolog.Nop())
	s.server.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.serve(l)
	go http.Get("http://" + l.Addr().String())
	<-started

	err = s.shutdownHook(20 * time.Millisecond).Run(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
