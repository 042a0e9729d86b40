// Package bus provides a typed event bus over a drainable broadcast queue,
// plus transports for mirroring events between processes.
//
// # Backends
//
// A Bus delivers through a Backend:
//
//   - NewLocal: in-process queue only
//   - NewMirrored: in-process queue that also publishes every accepted event
//     to a Transport subject
//
// Mirroring is best effort. Local delivery decides whether Send succeeds and
// publish failures are logged.
//
// # Transports
//
//   - MemoryTransport: in-process channels, for tests and single binaries
//   - NATSTransport: NATS core pub/sub
//   - RedisTransport: Redis PUBLISH/SUBSCRIBE
//
// Subscriptions buffer up to Config.BufferSize messages; when the buffer is
// full new messages are dropped.
//
// # Relaying
//
// Relay feeds events mirrored by other processes into a local queue:
//
//	m := bus.NewMirrored[Event](500, transport, "cluster.events", bus.MsgpackCodec[Event]{})
//	relay, err := bus.NewRelay(transport, "cluster.events", bus.MsgpackCodec[Event]{}, m.Local(),
//		bus.WithSkipOrigin(m.Origin()))
//	if err != nil {
//		return err
//	}
//	go relay.Run(ctx)
//
// # Shutdown
//
// DrainHook returns a hook for the asynchronous shutdown phase:
//
//	events := bus.New("cluster events", m, bus.WithLogger(logger))
//	registry.RegisterAsync("cluster events", events.DrainHook())
//
// The hook stops the bus, waits until every subscriber has read every
// buffered event and closes it, so consumers see broadcast.ErrClosed and exit.
package bus
