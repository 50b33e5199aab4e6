package servicekit

import (
	"context"
	"sync"

	"golang.org/x/exp/slices"
)

// Listener wraps a callback invoked for every value emitted on a Notifier.
// The handle itself is the registration identity: adding the same handle
// twice registers it once, and removing it requires the same handle. Wrapping
// the same function twice yields two independent listeners.
type Listener[T any] struct {
	fn func(context.Context, T)
}

// NewListener wraps fn into a Listener handle. It returns nil if fn is nil.
func NewListener[T any](fn func(context.Context, T)) *Listener[T] {
	if fn == nil {
		return nil
	}
	return &Listener[T]{fn: fn}
}

// invoke runs the callback. A panic is contained here so that one failing
// listener cannot take down the others notified by the same emit.
func (l *Listener[T]) invoke(ctx context.Context, value T) {
	defer func() {
		_ = recover()
	}()
	l.fn(ctx, value)
}

// Notifier delivers emitted values to a dynamic set of listeners. Every
// listener is invoked in its own goroutine and Emit returns once all of them
// have. A closed Notifier rejects further listeners and emissions; closing is
// terminal and idempotent.
//
// All methods are safe for concurrent use.
type Notifier[T any] struct {
	mut       sync.Mutex
	closed    bool
	listeners []*Listener[T]
}

// NewNotifier creates an open Notifier with no listeners.
func NewNotifier[T any]() *Notifier[T] {
	return &Notifier[T]{}
}

// AddListener registers l with the notifier. Registering an already
// registered handle has no effect; a nil handle is ignored. It fails if the
// notifier is closed.
func (n *Notifier[T]) AddListener(l *Listener[T]) error {
	if l == nil {
		return nil
	}
	n.mut.Lock()
	defer n.mut.Unlock()
	if n.closed {
		return errNotifierClosed
	}
	if !slices.Contains(n.listeners, l) {
		n.listeners = append(n.listeners, l)
	}
	return nil
}

// RemoveListener unregisters l. Removing a handle that is not registered, or
// removing from a closed notifier, has no effect.
func (n *Notifier[T]) RemoveListener(l *Listener[T]) {
	n.mut.Lock()
	defer n.mut.Unlock()
	if i := slices.Index(n.listeners, l); i >= 0 {
		n.listeners = slices.Delete(n.listeners, i, i+1)
	}
}

// HasListener reports whether l is currently registered.
func (n *Notifier[T]) HasListener(l *Listener[T]) bool {
	n.mut.Lock()
	defer n.mut.Unlock()
	return slices.Contains(n.listeners, l)
}

// Len returns the number of registered listeners.
func (n *Notifier[T]) Len() int {
	n.mut.Lock()
	defer n.mut.Unlock()
	return len(n.listeners)
}

// IsClosed reports whether the notifier has been closed.
func (n *Notifier[T]) IsClosed() bool {
	n.mut.Lock()
	defer n.mut.Unlock()
	return n.closed
}

// Emit invokes every listener registered at the time of the call with value,
// each in its own goroutine, and waits until the last one returns. Listeners
// added while an emit is in flight only see later emissions; removed ones may
// still see the one in flight. It fails if the notifier is closed.
func (n *Notifier[T]) Emit(ctx context.Context, value T) error {
	n.mut.Lock()
	if n.closed {
		n.mut.Unlock()
		return errNotifierClosed
	}
	listeners := slices.Clone(n.listeners)
	n.mut.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(listeners))
	for _, l := range listeners {
		l := l
		go func() {
			defer wg.Done()
			l.invoke(ctx, value)
		}()
	}
	wg.Wait()
	return nil
}

// Close closes the notifier and drops all listeners. Emissions already in
// flight complete; later AddListener and Emit calls fail. Closing an already
// closed notifier has no effect.
func (n *Notifier[T]) Close() {
	n.mut.Lock()
	defer n.mut.Unlock()
	n.closed = true
	n.listeners = nil
}
