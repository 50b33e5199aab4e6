package servicekit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// isClosed reports whether ch is closed right now, without blocking.
func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestTaskGroupWaitEmpty(t *testing.T) {
	g := NewTaskGroup()
	assert.True(t, isClosed(g.Wait()))
	assert.NoError(t, g.TryWait(context.Background()))
	assert.Equal(t, 0, g.Len())
}

func TestTaskGroupSpawnAndDrain(t *testing.T) {
	g := NewTaskGroup()
	release := make(chan struct{})
	task := g.Spawn(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})

	assert.Equal(t, 1, g.Len())
	wait := g.Wait()
	assert.False(t, isClosed(wait))
	assert.Nil(t, task.Err())

	close(release)
	assert.NoError(t, g.TryWait(context.Background()))
	assert.True(t, isClosed(wait))
	assert.True(t, isClosed(task.Done()))
	assert.Equal(t, 0, g.Len())
}

func TestTaskGroupWaitCoversLateSpawns(t *testing.T) {
	g := NewTaskGroup()
	release1 := make(chan struct{})
	release2 := make(chan struct{})
	t1 := g.Spawn(context.Background(), func(ctx context.Context) error {
		<-release1
		return nil
	})

	wait := g.Wait()
	t2 := g.Spawn(context.Background(), func(ctx context.Context) error {
		<-release2
		return nil
	})

	close(release1)
	<-t1.Done()
	assert.False(t, isClosed(wait))

	close(release2)
	<-t2.Done()
	assert.NoError(t, g.TryWait(context.Background()))
	assert.True(t, isClosed(wait))
}

func TestTaskGroupCancelAllSparesUncancellable(t *testing.T) {
	g := NewTaskGroup()
	release := make(chan struct{})
	cancellable := g.Spawn(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	uncancellable := g.SpawnUncancellable(context.Background(),
		func(ctx context.Context) error {
			<-release
			return nil
		})

	g.CancelAll()
	<-cancellable.Done()
	assert.ErrorIs(t, cancellable.Err(), context.Canceled)
	assert.False(t, isClosed(uncancellable.Done()))

	close(release)
	assert.NoError(t, g.TryWait(context.Background()))
	assert.NoError(t, uncancellable.Err())
}

func TestTaskCancelIndividual(t *testing.T) {
	g := NewTaskGroup()
	blocked := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	t1 := g.Spawn(context.Background(), blocked)
	t2 := g.Spawn(context.Background(), blocked)

	t1.Cancel()
	<-t1.Done()
	assert.ErrorIs(t, t1.Err(), context.Canceled)
	assert.False(t, isClosed(t2.Done()))

	t2.Cancel()
	assert.NoError(t, g.TryWait(context.Background()))
}

func TestTaskErrReportsFailure(t *testing.T) {
	g := NewTaskGroup()
	task := g.Spawn(context.Background(), func(ctx context.Context) error {
		return errors.New("oops")
	})
	<-task.Done()
	assert.EqualError(t, task.Err(), "oops")
}

func TestTaskPanicBecomesError(t *testing.T) {
	g := NewTaskGroup()
	task := g.Spawn(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	<-task.Done()
	assert.ErrorContains(t, task.Err(), "task panic: boom")
	assert.NoError(t, g.TryWait(context.Background()))
}

func TestTaskInheritsParentContext(t *testing.T) {
	g := NewTaskGroup()
	ctx, cancel := context.WithCancel(context.Background())
	task := g.Spawn(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	cancel()
	<-task.Done()
	assert.ErrorIs(t, task.Err(), context.Canceled)
}

func TestTaskGroupTryWaitAbandonsWithoutCancelling(t *testing.T) {
	g := NewTaskGroup()
	release := make(chan struct{})
	task := g.Spawn(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.TryWait(cancelled), context.Canceled)

	// The task survived the abandoned wait.
	assert.Equal(t, 1, g.Len())
	assert.False(t, isClosed(task.Done()))

	close(release)
	assert.NoError(t, g.TryWait(context.Background()))
}

func TestTaskGroupTryWaitExpires(t *testing.T) {
	g := NewTaskGroup()
	release := make(chan struct{})
	g.Spawn(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.TryWait(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, g.TryWait(context.Background()))
}

func TestSpawnTaskFreeStanding(t *testing.T) {
	release := make(chan struct{})
	task := spawnTask(context.Background(), func(ctx context.Context) error {
		<-release
		return errors.New("oops")
	})

	assert.False(t, isClosed(task.Done()))
	close(release)
	<-task.Done()
	assert.EqualError(t, task.Err(), "oops")
}
