package main

import (
	"context"
	"net"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/drainkit/bus"
	"github.com/vinayprograms/drainkit/clusterevent"
	"github.com/vinayprograms/drainkit/config"
	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/logging"
	"github.com/vinayprograms/drainkit/shutdown"
	"github.com/vinayprograms/drainkit/telemetry"
)

// app holds the running components and the order they shut down in.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	registry  *shutdown.Registry
	events    *bus.Bus[clusterevent.Event]
	consumer  clusterevent.Receiver
	transport bus.Transport
	relay     *bus.Relay[clusterevent.Event]
	server    *httpServer
	listener  net.Listener
	provider  *telemetry.Provider
}

// newApp connects every component and registers its shutdown hook. On
// error, whatever was already opened is closed again.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	if cfg.Telemetry.Endpoint != "" {
		a.provider, err = telemetry.InitProvider(ctx, telemetry.ProviderConfig{
			ServiceName:    cfg.Service.Name,
			ServiceVersion: version,
			Environment:    cfg.Service.Environment,
			Endpoint:       cfg.Telemetry.Endpoint,
			Protocol:       cfg.Telemetry.Protocol,
			Insecure:       cfg.Telemetry.Insecure,
		})
		if err != nil {
			return nil, err
		}
	}

	a.registry, err = shutdown.New(cfg.ShutdownConfig(),
		shutdown.WithLogger(logging.Component(logger, "shutdown")))
	if err != nil {
		return nil, err
	}

	if err = a.buildEvents(ctx); err != nil {
		return nil, err
	}

	a.listener, err = net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return nil, errors.Wrap(err, "listen on "+cfg.Server.Addr)
	}
	a.server = newHTTPServer(cfg.Server.Addr, a.events, a.registry, logging.Component(logger, "http"))

	// frontends and queues drain first, connections close once they are empty
	a.registry.RegisterAsync("http server", a.server.shutdownHook(cfg.Server.ShutdownTimeout))
	a.registry.RegisterAsync(a.events.Name(), a.events.DrainHook())
	if a.transport != nil {
		a.registry.RegisterSyncFunc("transport", a.closeTransport)
	}
	if a.provider != nil {
		a.registry.RegisterSyncFunc("telemetry", a.provider.Shutdown)
	}
	return a, nil
}

// buildEvents creates the cluster event bus for the configured backend. For
// nats and redis, sends are mirrored to the transport and a relay feeds
// events from other nodes into the local queue.
func (a *app) buildEvents(ctx context.Context) error {
	ev := a.cfg.Events
	logger := logging.Component(a.logger, "events")

	switch ev.Backend {
	case config.BackendMemory:
		a.events = clusterevent.NewLocalSender(ev.Capacity, logger)
		a.consumer = a.events.SubscribeFunc(clusterevent.IsUser)
		return nil
	case config.BackendNATS:
		t, err := bus.NewNATSTransport(a.cfg.NATSConfig())
		if err != nil {
			return err
		}
		a.transport = t
	case config.BackendRedis:
		t, err := bus.NewRedisTransport(ctx, a.cfg.RedisConfig())
		if err != nil {
			return err
		}
		a.transport = t
	default:
		return errors.InvalidConfig("unknown events backend " + ev.Backend)
	}

	mirrored := bus.NewMirrored[clusterevent.Event](ev.Capacity, a.transport, ev.Subject, clusterevent.Codec,
		bus.WithMirrorLogger(logger))
	relay, err := bus.NewRelay[clusterevent.Event](a.transport, ev.Subject, clusterevent.Codec, mirrored.Local(),
		bus.WithRelayLogger(logger),
		bus.WithSkipOrigin(mirrored.Origin()))
	if err != nil {
		return err
	}
	a.relay = relay
	a.events = clusterevent.NewSender(mirrored, logger)
	a.consumer = a.events.SubscribeFunc(clusterevent.IsUser)

	logger.Info().
		Str("backend", ev.Backend).
		Str("subject", ev.Subject).
		Str("origin", mirrored.Origin()).
		Msg("cluster events mirrored")
	return nil
}

// run serves until a signal arrives or ctx is cancelled, then waits for the
// drain to finish. It returns the joined hook failures, if any.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.serve(a.listener)
	})
	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(gctx)
		})
	}
	// the consumer outlives gctx so buffered events are read during the drain
	g.Go(func() error {
		return clusterevent.Consume(context.Background(), a.consumer, a.handleEvent,
			logging.Component(a.logger, "consumer"))
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			a.registry.Trigger()
		case <-a.registry.Done():
		}
		return nil
	})

	a.logger.Info().Msg("drainkit started")

	<-a.registry.Done()
	// a failed or timed-out hook leaves its component open; release what the
	// remaining goroutines block on so g.Wait returns either way
	a.events.Close()
	if a.relay != nil {
		a.relay.Close()
	}
	groupErr := g.Wait()
	if groupErr != nil && !errors.Is(groupErr, context.Canceled) {
		a.logger.Error().Err(groupErr).Msg("component failed")
	}

	result := a.registry.Result()
	a.logger.Info().
		Str("trigger", result.Trigger).
		Dur("elapsed", result.TotalDuration).
		Int("hooks", len(result.Results)).
		Msg("drainkit stopped")

	if result.Err != nil {
		return result.Err
	}
	if errors.Is(groupErr, context.Canceled) {
		return nil
	}
	return groupErr
}

func (a *app) handleEvent(ctx context.Context, e clusterevent.Event) error {
	_, span := telemetry.StartSpan(ctx, "clusterevent.handle",
		attribute.String("event.id", e.ID),
		attribute.String("event.kind", string(e.Kind)))
	defer telemetry.EndSpan(span, nil)

	a.logger.Debug().
		Str("event_id", e.ID).
		Str("user_id", e.User.UserID).
		Str("action", e.User.Action).
		Time("at", e.Time()).
		Msg("cluster event received")
	return nil
}

func (a *app) closeTransport(ctx context.Context) error {
	var errs []error
	if a.relay != nil {
		errs = append(errs, a.relay.Close())
	}
	errs = append(errs, a.transport.Close())
	return errors.Join(errs...)
}

// closeAll releases what newApp opened before it failed.
func (a *app) closeAll() {
	if a.listener != nil {
		a.listener.Close()
	}
	if a.events != nil {
		a.events.Close()
	}
	if a.transport != nil {
		a.closeTransport(context.Background())
	}
	if a.provider != nil {
		a.provider.Shutdown(context.Background())
	}
	if a.registry != nil {
		a.registry.Trigger()
	}
}
