package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/drainkit/clusterevent"
	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/shutdown"
	"github.com/vinayprograms/drainkit/telemetry"
)

// eventSender is the part of the cluster event bus the server needs.
type eventSender interface {
	Send(e clusterevent.Event) error
}

// stateSource reports shutdown progress.
type stateSource interface {
	State() shutdown.State
}

type httpServer struct {
	server   *http.Server
	events   eventSender
	state    stateSource
	logger   zerolog.Logger
	accepted atomic.Int64
	inFlight atomic.Int64
}

type eventRequest struct {
	UserID string `json:"user_id"`
	Action string `json:"action"`
}

func (r eventRequest) validate() error {
	if r.UserID == "" || r.Action == "" {
		return errors.New(errors.ErrCodeInvalidInput, "user_id and action are required")
	}
	return nil
}

type healthResponse struct {
	State    string `json:"state"`
	Accepted int64  `json:"accepted"`
	InFlight int64  `json:"in_flight"`
}

func newHTTPServer(addr string, events eventSender, state stateSource, logger zerolog.Logger) *httpServer {
	s := &httpServer{
		events: events,
		state:  state,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", s.handleEvent)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// serve accepts connections on l until shutdown is called.
func (s *httpServer) serve(l net.Listener) error {
	s.logger.Info().Str("addr", l.Addr().String()).Msg("http server listening")
	if err := s.server.Serve(l); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server")
	}
	return nil
}

// shutdownHook stops accepting connections and waits up to timeout for
// in-flight requests. A zero timeout waits as long as the phase allows.
func (s *httpServer) shutdownHook(timeout time.Duration) shutdown.Hook {
	return shutdown.HookFunc(func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn().Err(err).Int64("in_flight", s.inFlight.Load()).Msg("http server shutdown incomplete")
			return err
		}
		s.logger.Info().Int64("accepted", s.accepted.Load()).Msg("http server stopped")
		return nil
	})
}

func (s *httpServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	_, span := telemetry.StartServerSpan(r, "POST /events")
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	var req eventRequest
	if err = json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err = req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e := clusterevent.NewUserEvent(req.UserID, req.Action)
	span.SetAttributes(attribute.String("event.id", e.ID))

	if err = s.events.Send(e); err != nil {
		status := http.StatusInternalServerError
		if errors.HasCode(err, errors.ErrCodeClosed) || errors.IsRetryable(err) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	s.accepted.Add(1)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": e.ID})
}

func (s *httpServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.state.State()
	status := http.StatusOK
	if state != shutdown.StateRunning {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		State:    state.String(),
		Accepted: s.accepted.Load(),
		InFlight: s.inFlight.Load(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
