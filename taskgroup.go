package servicekit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
)

// alwaysClosed is returned by Wait when there is nothing to wait for.
var alwaysClosed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Task is a handle to one unit of background work. It exposes completion and
// the final error without owning the goroutine: cancelling a task only
// cancels its context, the function still has to return on its own.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mut sync.Mutex
	err error
}

// Done returns a channel that is closed once the task function has returned,
// whatever the outcome.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the error the task finished with. It returns nil while the task
// is still running and after a successful run. A panic inside the task
// function surfaces here as an error rather than crashing the process.
func (t *Task) Err() error {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.err
}

// Cancel cancels the context of this task only. Other tasks in the same group
// are unaffected. Cancelling a finished task has no effect.
func (t *Task) Cancel() {
	t.cancel()
}

func (t *Task) run(ctx context.Context, fn WorkFunc) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.setErr(fmt.Errorf("task panic: %v", r))
		}
	}()
	t.setErr(fn(ctx))
}

func (t *Task) setErr(err error) {
	if err == nil {
		return
	}
	t.mut.Lock()
	t.err = err
	t.mut.Unlock()
}

// spawnTask starts fn as a free-standing task outside of any group. The
// service main routine runs this way so that draining the auxiliary group
// does not wait on it twice.
func spawnTask(ctx context.Context, fn WorkFunc) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer cancel()
		t.run(ctx, fn)
	}()
	return t
}

// TaskGroup tracks a set of background tasks so they can be cancelled and
// awaited together. Tasks remove themselves when they finish. An error in one
// task never affects the others; collect errors per task through Err.
//
// All methods are safe for concurrent use.
type TaskGroup struct {
	mut           sync.Mutex
	cancellable   map[*Task]struct{}
	uncancellable map[*Task]struct{}
	idle          chan struct{}
}

// NewTaskGroup creates an empty TaskGroup.
func NewTaskGroup() *TaskGroup {
	return &TaskGroup{
		cancellable:   make(map[*Task]struct{}),
		uncancellable: make(map[*Task]struct{}),
	}
}

// Spawn starts fn in its own goroutine as a cancellable member of the group.
// The task context is derived from ctx, so cancelling ctx reaches the task as
// well.
func (g *TaskGroup) Spawn(ctx context.Context, fn WorkFunc) *Task {
	return g.spawn(ctx, fn, true)
}

// SpawnUncancellable starts fn like Spawn but exempts it from CancelAll. Use
// it for work that must run to completion once begun; Wait still covers it.
// The task can still be cancelled individually through its handle or by
// cancelling ctx.
func (g *TaskGroup) SpawnUncancellable(ctx context.Context, fn WorkFunc) *Task {
	return g.spawn(ctx, fn, false)
}

func (g *TaskGroup) spawn(ctx context.Context, fn WorkFunc, cancellable bool) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	g.mut.Lock()
	if cancellable {
		g.cancellable[t] = struct{}{}
	} else {
		g.uncancellable[t] = struct{}{}
	}
	g.mut.Unlock()

	go func() {
		defer g.remove(t)
		defer cancel()
		t.run(ctx, fn)
	}()
	return t
}

func (g *TaskGroup) remove(t *Task) {
	g.mut.Lock()
	defer g.mut.Unlock()

	delete(g.cancellable, t)
	delete(g.uncancellable, t)
	if len(g.cancellable)+len(g.uncancellable) == 0 && g.idle != nil {
		close(g.idle)
		g.idle = nil
	}
}

// CancelAll cancels the context of every cancellable task currently in the
// group. Uncancellable tasks keep running. CancelAll does not wait for
// anything; follow it with Wait or TryWait to observe completion.
func (g *TaskGroup) CancelAll() {
	g.mut.Lock()
	tasks := maps.Keys(g.cancellable)
	g.mut.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
}

// Wait returns a channel that is closed once every task in the group,
// cancellable and uncancellable alike, has finished. If the group is already
// empty the returned channel is closed. Tasks spawned while a wait is pending
// extend it.
func (g *TaskGroup) Wait() <-chan struct{} {
	g.mut.Lock()
	defer g.mut.Unlock()

	if len(g.cancellable)+len(g.uncancellable) == 0 {
		return alwaysClosed
	}
	if g.idle == nil {
		g.idle = make(chan struct{})
	}
	return g.idle
}

// TryWait waits for the group to drain, giving up when ctx is done and
// returning its error in that case. Abandoning the wait does not cancel any
// task; a later Wait or TryWait resumes observing the same group.
func (g *TaskGroup) TryWait(ctx context.Context) error {
	// Check ctx first so that a single call with an already-cancelled
	// context cannot pass by winning the race against an empty group.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.Wait():
			return nil
		}
	}
}

// Len returns the number of tasks currently tracked by the group.
func (g *TaskGroup) Len() int {
	g.mut.Lock()
	defer g.mut.Unlock()
	return len(g.cancellable) + len(g.uncancellable)
}
