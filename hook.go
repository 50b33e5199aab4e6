package servicekit

import (
	"context"
)

// ContextHook is a context-aware hook. Lifecycle hooks run exactly once per
// transition and are expected to return once their work is done.
type ContextHook = func(context.Context) error

// Hook is a naive hook. Use DropContext to pass one where a ContextHook is
// expected.
type Hook = func() error

// WorkFunc is the body of a background task or of a service's main routine.
// The function owns its goroutine until it returns; the provided context is
// cancelled when the surrounding task or service wants it to exit, and the
// function is expected to notice and return promptly.
type WorkFunc = func(context.Context) error
