package servicekit

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// newHostedService builds a service logging its start and stop order into
// log, isolated from process signals.
func newHostedService(name string, log *stepLog) *Service {
	return NewServiceWithOptions(&Hooks{
		Name: name,
		OnStart: func(ctx context.Context) error {
			log.add("start " + name)
			return nil
		},
		OnWork: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.add("stop " + name)
			return nil
		},
	}, &ServiceOptions{
		Logger:   simpleLogger{},
		Shutdown: NewNotifier[os.Signal](),
	})
}

func TestHostStartStopOrder(t *testing.T) {
	var log stepLog
	a := newHostedService("a", &log)
	b := newHostedService("b", &log)
	c := newHostedService("c", &log)
	h := NewHostWithOptions(&HostOptions{Logger: simpleLogger{}}, a, b, c)
	assert.Len(t, h.Services(), 3)

	ctx := context.Background()
	assert.NoError(t, h.Start(ctx))
	assert.True(t, a.IsRunning())
	assert.True(t, b.IsRunning())
	assert.True(t, c.IsRunning())
	assert.Equal(t, []string{"start a", "start b", "start c"}, log.Steps())

	assert.NoError(t, h.Stop(ctx))
	assert.True(t, a.IsStopped())
	assert.True(t, b.IsStopped())
	assert.True(t, c.IsStopped())
	assert.Equal(t, []string{
		"start a", "start b", "start c",
		"stop c", "stop b", "stop a",
	}, log.Steps())
}

func TestHostDoubleStart(t *testing.T) {
	var log stepLog
	h := NewHost(newHostedService("a", &log))

	ctx := context.Background()
	assert.NoError(t, h.Start(ctx))
	assert.True(t, IsInvalidState(h.Start(ctx)))

	assert.NoError(t, h.Stop(ctx))
	assert.NoError(t, h.Start(ctx))
	assert.NoError(t, h.Stop(ctx))
}

func TestHostStopNotStartedIsNoop(t *testing.T) {
	var log stepLog
	h := NewHost(newHostedService("a", &log))
	assert.NoError(t, h.Stop(context.Background()))
	assert.Empty(t, log.Steps())
}

func TestHostStartRollsBackOnFailure(t *testing.T) {
	var log stepLog
	var attempts counter
	a := newHostedService("a", &log)
	failing := NewServiceWithOptions(&Hooks{
		Name: "failing",
		OnStart: func(ctx context.Context) error {
			attempts.inc()
			if attempts.value() == 1 {
				return errors.New("oops")
			}
			return nil
		},
		OnWork: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	}, &ServiceOptions{Shutdown: NewNotifier[os.Signal]()})
	h := NewHost(a, failing)

	ctx := context.Background()
	err := h.Start(ctx)
	assert.ErrorContains(t, err, "oops")
	assert.True(t, a.IsStopped())
	assert.True(t, failing.IsStopped())
	assert.Equal(t, []string{"start a", "stop a"}, log.Steps())

	// The rollback releases the host for another attempt.
	assert.NoError(t, h.Start(ctx))
	assert.True(t, a.IsRunning())
	assert.True(t, failing.IsRunning())
	assert.NoError(t, h.Stop(ctx))
}

func TestHostWait(t *testing.T) {
	var log stepLog
	a := newHostedService("a", &log)
	b := newHostedService("b", &log)
	h := NewHost(a, b)

	ctx := context.Background()
	assert.NoError(t, h.Wait(ctx))

	assert.NoError(t, h.Start(ctx))
	waited := make(chan error, 1)
	go func() {
		waited <- h.Wait(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, len(waited))

	// Stopping one service is not enough.
	assert.NoError(t, a.Stop(ctx))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, len(waited))

	assert.NoError(t, b.Stop(ctx))
	assert.NoError(t, <-waited)
}

func TestHostWaitAbandonedOnContext(t *testing.T) {
	var log stepLog
	h := NewHost(newHostedService("a", &log))
	assert.NoError(t, h.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
	assert.NoError(t, h.Stop(context.Background()))
}

func TestHostRunStopsOnContextCancel(t *testing.T) {
	var log stepLog
	a := newHostedService("a", &log)
	b := newHostedService("b", &log)
	h := NewHost(a, b)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() {
		finished <- h.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return a.IsRunning() && b.IsRunning()
	}, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-finished)
	assert.True(t, a.IsStopped())
	assert.True(t, b.IsStopped())
	assert.Equal(t, []string{
		"start a", "start b",
		"stop b", "stop a",
	}, log.Steps())
}

func TestHostRunStopsOnShutdownSignal(t *testing.T) {
	shutdown := NewNotifier[os.Signal]()
	newSignalled := func(name string) *Service {
		return NewServiceWithOptions(&Hooks{
			Name: name,
			OnWork: func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			},
		}, &ServiceOptions{Shutdown: shutdown})
	}
	a := newSignalled("a")
	b := newSignalled("b")
	h := NewHost(a, b)

	finished := make(chan error, 1)
	go func() {
		finished <- h.Run(context.Background())
	}()

	assert.Eventually(t, func() bool {
		return a.IsRunning() && b.IsRunning()
	}, time.Second, time.Millisecond)

	// One signal reaches every running service and ends the run.
	assert.NoError(t, shutdown.Emit(context.Background(), syscall.SIGTERM))
	assert.NoError(t, <-finished)
	assert.True(t, a.IsStopped())
	assert.True(t, b.IsStopped())
}

func TestHostRunReturnsOnceAllServicesStop(t *testing.T) {
	var log stepLog
	a := newHostedService("a", &log)
	b := newHostedService("b", &log)
	h := NewHost(a, b)

	finished := make(chan error, 1)
	go func() {
		finished <- h.Run(context.Background())
	}()

	assert.Eventually(t, func() bool {
		return a.IsRunning() && b.IsRunning()
	}, time.Second, time.Millisecond)

	ctx := context.Background()
	assert.NoError(t, a.Stop(ctx))
	assert.NoError(t, b.Stop(ctx))
	assert.NoError(t, <-finished)

	// A completed run releases the host for another one.
	assert.NoError(t, h.Start(ctx))
	assert.NoError(t, h.Stop(ctx))
}
