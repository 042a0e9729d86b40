package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/drainkit/errors"
)

const tracerName = "github.com/vinayprograms/drainkit/shutdown"

// Trigger sources reported in Result.Trigger.
const (
	TriggerManual   = "trigger"
	TriggerShutdown = "shutdown"
)

// Registry collects shutdown hooks and runs them in two phases when a
// termination signal arrives. Safe for concurrent use.
type Registry struct {
	config Config
	logger zerolog.Logger
	tracer trace.Tracer

	// mu guards queues and orders registration against phase snapshots.
	mu     sync.Mutex
	queues [2][]registration
	state  atomic.Int32

	trigger chan string
	done    chan struct{}
	result  *Result
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithTracerProvider sets the provider used for drain spans.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Registry) {
		r.tracer = tp.Tracer(tracerName)
	}
}

// New creates a registry and starts its signal listener.
func New(cfg Config, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		config:  cfg,
		logger:  zerolog.Nop(),
		tracer:  otel.Tracer(tracerName),
		trigger: make(chan string, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	var sigCh chan os.Signal
	if cfg.HandleSignals {
		signals := cfg.Signals
		if len(signals) == 0 {
			signals = terminationSignals()
		}
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, signals...)
	}
	go r.listen(sigCh)

	return r, nil
}

// RegisterAsync adds a hook to the async phase.
func (r *Registry) RegisterAsync(name string, hook Hook) {
	r.register(PhaseAsync, name, hook)
}

// RegisterSync adds a hook to the sync phase.
func (r *Registry) RegisterSync(name string, hook Hook) {
	r.register(PhaseSync, name, hook)
}

// RegisterAsyncFunc is a convenience method for registering a function in
// the async phase.
func (r *Registry) RegisterAsyncFunc(name string, fn func(ctx context.Context) error) {
	r.RegisterAsync(name, HookFunc(fn))
}

// RegisterSyncFunc is a convenience method for registering a function in
// the sync phase.
func (r *Registry) RegisterSyncFunc(name string, fn func(ctx context.Context) error) {
	r.RegisterSync(name, HookFunc(fn))
}

// register appends a hook unless its phase has already been snapshotted.
func (r *Registry) register(phase Phase, name string, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if State(r.state.Load()) >= drainingState(phase) {
		r.logger.Warn().
			Str("hook", name).
			Stringer("phase", phase).
			Stringer("state", State(r.state.Load())).
			Msg("hook registered after its phase started, it will not run")
		return
	}

	r.queues[phase] = append(r.queues[phase], registration{name: name, hook: hook})
}

// Pending returns the number of hooks queued for phase.
func (r *Registry) Pending(phase Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues[phase])
}

// State returns the current lifecycle state.
func (r *Registry) State() State {
	return State(r.state.Load())
}

// Trigger starts the drain as if a termination signal had arrived.
// Calls after the first have no effect.
func (r *Registry) Trigger() {
	r.fire(TriggerManual)
}

// Shutdown starts the drain and waits for it to complete or for ctx to end.
// It returns the drain error, or ctx.Err() if ctx ends first.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.fire(TriggerShutdown)
	if err := r.Wait(ctx); err != nil {
		return err
	}
	return r.Err()
}

func (r *Registry) fire(source string) {
	select {
	case r.trigger <- source:
	default:
	}
}

// Wait blocks until the drain has completed or ctx is done. It returns
// immediately once the drain has completed, for any number of callers.
func (r *Registry) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	default:
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed when the drain is complete.
func (r *Registry) Done() <-chan struct{} {
	return r.done
}

// Err returns the joined hook errors. Only valid after Done() is closed.
func (r *Registry) Err() error {
	select {
	case <-r.done:
		return r.result.Err
	default:
		return nil
	}
}

// Result returns the detailed drain result.
// Only valid after Done() is closed.
func (r *Registry) Result() *Result {
	select {
	case <-r.done:
		return r.result
	default:
		return nil
	}
}

// listen waits for the first signal or trigger and runs the drain. Later
// signals are absorbed by sigCh until the drain completes.
func (r *Registry) listen(sigCh chan os.Signal) {
	var source string
	select {
	case sig := <-sigCh:
		source = sig.String()
	case source = <-r.trigger:
	}

	r.drain(source)

	if sigCh != nil {
		signal.Stop(sigCh)
	}
}

// drain runs both phases in order and publishes the result.
func (r *Registry) drain(source string) {
	start := time.Now()
	r.state.Store(int32(StateSignalReceived))

	ctx, span := r.tracer.Start(context.Background(), "shutdown.drain",
		trace.WithAttributes(attribute.String("shutdown.trigger", source)))

	r.logger.Info().
		Str("trigger", source).
		Int("async_hooks", r.Pending(PhaseAsync)).
		Int("sync_hooks", r.Pending(PhaseSync)).
		Msg("shutdown drain started")

	var results []HookResult
	for _, phase := range []Phase{PhaseAsync, PhaseSync} {
		results = append(results, r.runPhase(ctx, phase)...)
	}

	var errs []error
	for _, hr := range results {
		if hr.Err != nil {
			errs = append(errs, hr.Err)
		}
	}

	r.result = &Result{
		Trigger:       source,
		TotalDuration: time.Since(start),
		Results:       results,
		Err:           errors.Join(errs...),
	}

	if r.result.Err != nil {
		span.SetStatus(codes.Error, r.result.Err.Error())
		r.logger.Warn().
			Strs("failed", r.result.FailedHooks()).
			Dur("elapsed", r.result.TotalDuration).
			Msg("shutdown drain completed with failures")
	} else {
		r.logger.Info().Dur("elapsed", r.result.TotalDuration).Msg("shutdown drain completed")
	}
	span.End()

	r.state.Store(int32(StateCompleted))
	close(r.done)
}

// runPhase snapshots the phase queue and runs the snapshot concurrently.
func (r *Registry) runPhase(ctx context.Context, phase Phase) []HookResult {
	r.mu.Lock()
	r.state.Store(int32(drainingState(phase)))
	hooks := r.queues[phase]
	r.queues[phase] = nil
	r.mu.Unlock()

	ctx, span := r.tracer.Start(ctx, "shutdown.phase",
		trace.WithAttributes(
			attribute.String("shutdown.phase", phase.String()),
			attribute.Int("shutdown.hooks", len(hooks)),
		))
	defer span.End()

	start := time.Now()
	if len(hooks) == 0 {
		return nil
	}

	phaseCtx := ctx
	var deadline <-chan time.Time
	if r.config.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		phaseCtx, cancel = context.WithTimeout(ctx, r.config.PhaseTimeout)
		defer cancel()
		timer := time.NewTimer(r.config.PhaseTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var (
		mu       sync.Mutex
		results  = make([]HookResult, len(hooks))
		finished = make([]bool, len(hooks))
		wg       sync.WaitGroup
	)

	for i, reg := range hooks {
		wg.Add(1)
		go func(idx int, reg registration) {
			defer wg.Done()

			hr := r.runHook(phaseCtx, phase, reg)

			mu.Lock()
			late := finished[idx]
			if !late {
				results[idx] = hr
				finished[idx] = true
			}
			mu.Unlock()

			if !late && r.config.OnProgress != nil {
				r.config.OnProgress(hr)
			}
		}(i, reg)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
	case <-deadline:
		mu.Lock()
		for i, reg := range hooks {
			if finished[i] {
				continue
			}
			finished[i] = true
			results[i] = HookResult{
				Name:     reg.name,
				Phase:    phase,
				Duration: time.Since(start),
				Err:      errors.PhaseTimeout(reg.name, phase.String()),
				TimedOut: true,
			}
			r.logger.Warn().
				Str("hook", reg.name).
				Stringer("phase", phase).
				Dur("timeout", r.config.PhaseTimeout).
				Msg("shutdown hook did not finish before phase deadline")
		}
		mu.Unlock()
		span.SetStatus(codes.Error, "phase deadline exceeded")
	}

	mu.Lock()
	out := make([]HookResult, len(results))
	copy(out, results)
	mu.Unlock()

	r.logger.Info().
		Stringer("phase", phase).
		Int("hooks", len(hooks)).
		Dur("elapsed", time.Since(start)).
		Msg("shutdown phase completed")

	return out
}

// runHook runs one hook, converting errors and panics into results.
func (r *Registry) runHook(ctx context.Context, phase Phase, reg registration) (hr HookResult) {
	hr = HookResult{Name: reg.name, Phase: phase}
	start := time.Now()

	defer func() {
		if v := recover(); v != nil {
			hr.Err = errors.HookPanic(reg.name, v)
		}
		hr.Duration = time.Since(start)
		if hr.Err != nil {
			r.logger.Error().
				Err(hr.Err).
				Str("hook", reg.name).
				Stringer("phase", phase).
				Dur("elapsed", hr.Duration).
				Msg("shutdown hook failed")
		}
	}()

	if err := reg.hook.Run(ctx); err != nil {
		hr.Err = errors.HookFailed(reg.name, err)
	}
	return hr
}
