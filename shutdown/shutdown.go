package shutdown

import (
	"context"
	"os"
	"time"

	"github.com/vinayprograms/drainkit/errors"
)

// Hook is a unit of cleanup work run once at shutdown.
type Hook interface {
	// Run performs the cleanup. ctx carries the phase deadline when one is
	// configured; hooks should return promptly once it is done.
	Run(ctx context.Context) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context) error

// Run implements Hook.
func (f HookFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Phase is one of the two ordered cleanup stages.
type Phase int

const (
	// PhaseAsync hooks run first, typically long drains such as queues and
	// servers.
	PhaseAsync Phase = iota
	// PhaseSync hooks run after every async hook has finished, typically
	// quick resource releases.
	PhaseSync
)

var phaseNames = [...]string{"async", "sync"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// State is the registry lifecycle. It only moves forward.
type State int32

const (
	StateRunning State = iota
	StateSignalReceived
	StateDrainingAsync
	StateDrainingSync
	StateCompleted
)

var stateNames = [...]string{"running", "signal_received", "draining_async", "draining_sync", "completed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// drainingState maps a phase to the state entered when it starts.
func drainingState(p Phase) State {
	if p == PhaseAsync {
		return StateDrainingAsync
	}
	return StateDrainingSync
}

// HookResult contains the result of a single hook.
type HookResult struct {
	// Name the hook was registered with.
	Name string

	// Phase the hook ran in.
	Phase Phase

	// Duration how long the hook ran, or how long it had when its phase
	// deadline expired.
	Duration time.Duration

	// Err is HOOK_FAILED, HOOK_PANIC or PHASE_TIMEOUT, nil on success.
	Err error

	// TimedOut is set when the hook was still running at the phase deadline.
	TimedOut bool
}

// Result contains the complete drain result.
type Result struct {
	// Trigger names what started the drain: a signal name, "trigger" or
	// "shutdown".
	Trigger string

	// TotalDuration of the entire drain.
	TotalDuration time.Duration

	// Results for each hook, async phase first.
	Results []HookResult

	// Err joins every hook error, nil if all hooks succeeded.
	Err error
}

// Failed returns true if any hook failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHooks returns the names of hooks that failed.
func (r *Result) FailedHooks() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures a Registry.
type Config struct {
	// PhaseTimeout bounds each phase. When it expires the phase is
	// force-completed and unfinished hooks are reported with PHASE_TIMEOUT.
	// Zero means no deadline.
	// Default: 30 seconds
	PhaseTimeout time.Duration

	// HandleSignals starts listening for termination signals in New.
	// Default: true
	HandleSignals bool

	// Signals overrides the platform's termination signals.
	Signals []os.Signal

	// OnProgress is called when each hook completes.
	OnProgress func(result HookResult)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.PhaseTimeout < 0 {
		return errors.InvalidConfig("shutdown phase timeout must not be negative")
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PhaseTimeout:  30 * time.Second,
		HandleSignals: true,
	}
}

// registration holds a registered hook with its name.
type registration struct {
	name string
	hook Hook
}
