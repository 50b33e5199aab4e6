package servicekit

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Hooks contain the functions called by the service to run the underlying
// work.
type Hooks struct {
	// A friendly name for the service (optional)
	Name string
	// OnStart prepares the service for work. It runs before the service
	// reaches Running, so the main routine never observes a partially
	// initialised service. Returning an error aborts the start and the
	// service falls back to Stopped. (optional)
	OnStart ContextHook
	// OnWork is the main routine of the service (required). It runs in its
	// own goroutine once the service is Running and is expected to block for
	// the lifetime of the run. The provided context is cancelled when the
	// service leaves Running; the routine is never killed, Stop waits for it
	// to return. Loops that cannot select on the context can poll IsRunning
	// instead. Returning early does not change the service state, and an
	// error it returns is logged during the stop.
	OnWork WorkFunc
	// OnStop releases what OnStart acquired. It runs right after the service
	// enters Stopping, before the main routine is awaited, so it can also be
	// the nudge that makes a blocked main routine return. Its error is
	// reported by Stop once teardown is complete. (optional)
	OnStop ContextHook
}

func (h Hooks) copy() *Hooks {
	return &h
}

// ServiceOptions contains options for the service.
type ServiceOptions struct {
	// Sets the Logger to use to log lifecycle events. If nil, the logging
	// messages are discarded.
	Logger Logger
	// Shutdown sets the notifier whose emissions stop the service. If nil,
	// the process-wide notifier returned by OnShutdown is used. Tests
	// typically inject a private notifier here to stop services without
	// raising real signals.
	Shutdown *Notifier[os.Signal]
}

func (o ServiceOptions) copy() *ServiceOptions {
	return &o
}

// Service runs a long-lived routine with a managed lifecycle. It moves
// through Stopped, Starting, Running and Stopping, notifies subscribers on
// every transition, owns a TaskGroup for auxiliary work and stops itself on
// process shutdown signals. A stopped service can be started again; every
// run gets a fresh main routine invocation.
//
// All methods are safe for concurrent use. Start, Stop and Restart guard
// their state transition atomically, so concurrent drivers cannot double-run
// the hooks: whoever loses the race gets a no-op.
type Service struct {
	// Service hooks
	hooks *Hooks
	// Service options
	opts *ServiceOptions
	// Lifecycle transition notifier, never closed
	stateChange *Notifier[StateChange]
	// Auxiliary tasks drained on stop
	tasks *TaskGroup

	// Enforces atomic state change
	mut sync.Mutex
	// Current state
	state ServiceState
	// Main routine task of the current run
	main *Task
	// Cancelled when the current run leaves Running
	workCancel context.CancelFunc
	// Closed when the current run is fully stopped
	waiter chan struct{}
	// Shutdown listener of the current run
	shutdown *Listener[os.Signal]
}

// NewService creates a Service driven by the provided hooks. It returns nil
// if the hook structure or the OnWork hook is nil.
func NewService(hooks *Hooks) *Service {
	return NewServiceWithOptions(hooks, nil)
}

// NewServiceWithOptions creates a Service with the provided hooks and
// options. It returns nil if the hook structure or the OnWork hook is nil.
func NewServiceWithOptions(hooks *Hooks, opts *ServiceOptions) *Service {
	if hooks == nil || hooks.OnWork == nil {
		return nil
	}
	if opts == nil {
		opts = &ServiceOptions{}
	}
	return &Service{
		hooks:       hooks.copy(),
		opts:        opts.copy(),
		stateChange: NewNotifier[StateChange](),
		tasks:       NewTaskGroup(),
		state:       Stopped,
	}
}

// Name provides a user-friendly name for the service, that is used in the
// logs.
func (s *Service) Name() string {
	return s.hooks.Name
}

// State returns the current state of the service.
func (s *Service) State() ServiceState {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.state
}

// IsRunning reports whether the service is in the Running state. Main
// routines structured as polling loops use it as their exit condition.
func (s *Service) IsRunning() bool {
	return s.State() == Running
}

// IsStopped reports whether the service is in the Stopped state.
func (s *Service) IsStopped() bool {
	return s.State() == Stopped
}

// Tasks returns the task group owned by the service. Work spawned into it
// runs alongside the main routine; Stop cancels the cancellable members and
// waits for the whole group to drain before the service reaches Stopped.
func (s *Service) Tasks() *TaskGroup {
	return s.tasks
}

// Subscribe registers l to receive a StateChange for every transition the
// service makes. It is a plain notifier registration: adding the same handle
// twice keeps a single registration.
func (s *Service) Subscribe(l *Listener[StateChange]) error {
	return s.stateChange.AddListener(l)
}

// Unsubscribe removes a previously subscribed listener. Unknown handles are
// ignored.
func (s *Service) Unsubscribe(l *Listener[StateChange]) {
	s.stateChange.RemoveListener(l)
}

// Start starts the service: it runs the start hook, begins the main routine
// and moves the service to Running. It does not block on the main routine.
// Starting a service that is not Stopped is a no-op. If the start hook fails
// the service falls back to Stopped and the error is returned.
func (s *Service) Start(ctx context.Context) error {
	s.mut.Lock()
	if s.state != Stopped {
		s.mut.Unlock()
		return nil
	}
	// Fresh completion gate for this run.
	s.waiter = make(chan struct{})
	s.state = Starting
	s.mut.Unlock()
	s.emitState(ctx, Stopped, Starting)

	if s.hooks.OnStart != nil {
		if err := s.hooks.OnStart(ctx); err != nil {
			s.error(err, "start hook failed")
			s.mut.Lock()
			s.state = Stopped
			s.mut.Unlock()
			s.emitState(ctx, Starting, Stopped)
			return err
		}
	}

	// Stop on process shutdown. The handle doubles as the removal key on
	// stop.
	listener := NewListener(func(ctx context.Context, sig os.Signal) {
		s.info("received signal", "signal", sig)
		_ = s.Stop(ctx)
	})
	if err := s.shutdownNotifier().AddListener(listener); err != nil {
		s.error(err, "cannot listen for shutdown signals")
	}

	workCtx, workCancel := context.WithCancel(context.Background())
	s.mut.Lock()
	s.shutdown = listener
	s.workCancel = workCancel
	s.state = Running
	s.main = spawnTask(workCtx, s.hooks.OnWork)
	s.mut.Unlock()
	s.emitState(ctx, Starting, Running)

	return nil
}

// Stop gracefully stops the service: it runs the stop hook, waits for the
// main routine to return, then cancels and drains the auxiliary task group.
// Stopping a service that is not Running is a no-op, which also makes
// concurrent stops safe: one performs the teardown, the others return
// immediately. The stop hook error, if any, is returned once teardown is
// complete.
//
// Stop must not be called synchronously from a task inside the service's own
// group: the group cannot drain while one of its tasks is blocked in Stop.
// Dispatch it in a new goroutine instead.
func (s *Service) Stop(ctx context.Context) error {
	s.mut.Lock()
	if s.state != Running {
		s.mut.Unlock()
		return nil
	}
	s.state = Stopping
	main := s.main
	workCancel := s.workCancel
	listener := s.shutdown
	s.mut.Unlock()
	s.emitState(ctx, Running, Stopping)

	// Leaving Running is the exit signal for the main routine: its context
	// is cancelled and IsRunning turns false.
	workCancel()
	s.shutdownNotifier().RemoveListener(listener)

	var err error
	if s.hooks.OnStop != nil {
		if err = s.hooks.OnStop(ctx); err != nil {
			s.error(err, "stop hook failed")
		}
	}

	// Wait for the main routine, then drain the auxiliary tasks.
	<-main.Done()
	if workErr := main.Err(); workErr != nil && !errors.Is(workErr, context.Canceled) {
		s.error(workErr, "work routine failed")
	}
	s.tasks.CancelAll()
	<-s.tasks.Wait()

	s.mut.Lock()
	s.main = nil
	s.workCancel = nil
	s.shutdown = nil
	s.state = Stopped
	waiter := s.waiter
	s.mut.Unlock()
	s.emitState(ctx, Stopping, Stopped)
	close(waiter)

	return err
}

// Restart stops the service and starts it again, sequentially: the new run
// begins only once the previous one is fully stopped. Restarting a service
// that is not Running is a no-op. Errors from both phases are combined.
func (s *Service) Restart(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}

	var result *multierror.Error
	if err := s.Stop(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.Start(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Wait blocks until the current run is fully stopped, covering the main
// routine and all auxiliary tasks. It returns immediately when the service
// is not Running. ctx aborts the wait with its error; the service itself is
// unaffected.
func (s *Service) Wait(ctx context.Context) error {
	s.mut.Lock()
	if s.state != Running {
		s.mut.Unlock()
		return nil
	}
	waiter := s.waiter
	s.mut.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runGate returns a channel closed once the current run has fully stopped.
// Unlike Wait it also covers the Stopping state, which Host relies on to not
// declare a service finished while its teardown is still in flight.
func (s *Service) runGate() <-chan struct{} {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.state == Running || s.state == Stopping {
		return s.waiter
	}
	return alwaysClosed
}

// shutdownNotifier resolves the notifier this service listens on for
// shutdown signals.
func (s *Service) shutdownNotifier() *Notifier[os.Signal] {
	if s.opts.Shutdown != nil {
		return s.opts.Shutdown
	}
	return OnShutdown()
}

// emitState logs a transition and notifies the lifecycle subscribers. It is
// called outside the state lock, so subscribers can call back into the
// service.
func (s *Service) emitState(ctx context.Context, from, to ServiceState) {
	s.info("transitioned to state", "to", to.String(), "from", from.String())
	_ = s.stateChange.Emit(ctx, StateChange{Service: s, State: to})
}

// info logs an information message.
func (s *Service) info(msg string, keysAndValues ...interface{}) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, append(keysAndValues, "name", s.hooks.Name)...)
	}
}

// error logs an error
func (s *Service) error(err error, msg string, keysAndValues ...interface{}) {
	if s.opts.Logger != nil {
		s.opts.Logger.Error(err, msg, append(keysAndValues, "name",
			s.hooks.Name)...)
	}
}
