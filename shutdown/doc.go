// Package shutdown provides graceful shutdown coordination in two ordered
// phases.
//
// # Overview
//
// A Registry collects cleanup hooks from anywhere in the application and
// runs them once, when the process receives a termination signal (SIGINT or
// SIGTERM; Ctrl+C and console close events on Windows). Hooks go into one
// of two phases:
//
//   - async: long-running drains such as stopping an HTTP server or
//     draining an event queue
//   - sync: quick releases such as closing broker connections or flushing
//     telemetry
//
// Every async hook finishes before any sync hook starts. Hooks within a
// phase run concurrently.
//
// # Architecture
//
//	                 SIGTERM / SIGINT / Trigger() / Shutdown()
//	                                  │
//	                                  ▼
//	┌───────────────────────────────────────────────────────────┐
//	│                         Registry                          │
//	├───────────────────────────────────────────────────────────┤
//	│  async phase:  [hook A] [hook B] ...   (concurrent)       │
//	│                         │ barrier                         │
//	│  sync phase:   [hook C] [hook D] ...   (concurrent)       │
//	└───────────────────────────────────────────────────────────┘
//	                                  │
//	                                  ▼
//	                        Done() closed, Wait() returns
//
// # Usage
//
//	registry, err := shutdown.New(shutdown.DefaultConfig(), shutdown.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	registry.RegisterAsyncFunc("http server", func(ctx context.Context) error {
//	    return server.Shutdown(ctx)
//	})
//	registry.RegisterAsync("cluster events", events.DrainHook())
//	registry.RegisterSyncFunc("transport", func(ctx context.Context) error {
//	    return transport.Close()
//	})
//
//	// Block the main goroutine until both phases have run.
//	_ = registry.Wait(context.Background())
//
// Wait may be called from any number of goroutines; all are released when
// the drain completes, and calls after completion return immediately.
//
// # Snapshots
//
// Each phase runs the hooks queued when that phase starts. A hook registered
// after its phase has started is not run and a warning is logged; this keeps
// a drain finite even when hooks register further hooks. Sync hooks
// registered while the async phase is running are still picked up.
//
// # Failures and deadlines
//
// A hook that returns an error or panics is recorded as HOOK_FAILED or
// HOOK_PANIC and does not affect its siblings or the next phase.
//
// Config.PhaseTimeout bounds each phase. When it expires the phase context is
// cancelled, hooks still running are reported with PHASE_TIMEOUT and the
// drain moves on. A second termination signal during the drain has no
// effect.
//
// # Tracing
//
// Each drain produces a "shutdown.drain" span with one "shutdown.phase"
// child per phase, using the global OpenTelemetry provider unless
// WithTracerProvider is given.
package shutdown
