package servicekit

import (
	"context"
	"time"
)

// DropContext is a helper function wrapping a context-naive hook as a context
// hook. The context provided to the resulting ContextHook is discarded.
func DropContext(hook Hook) ContextHook {
	if hook == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return hook()
	}
}

// Sleep pauses the calling goroutine for the given duration or until ctx is
// done, whichever comes first, returning the context error in the latter
// case. Periodic work loops use it as their cooperative pause point: a
// service stopping cancels the work context and the loop wakes immediately
// instead of oversleeping its shutdown.
func Sleep(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
