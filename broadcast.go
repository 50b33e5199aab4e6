package servicekit

import (
	"context"
	"sync"

	"golang.org/x/exp/slices"
)

// BroadcasterOptions contains options for a Broadcaster.
type BroadcasterOptions struct {
	// DefaultCapacity is the buffer capacity given to subscribers connected
	// without an explicit one. Values below 1 are treated as 1.
	DefaultCapacity int
	// Strict makes Publish fail when no subscriber is connected instead of
	// silently dropping the value.
	Strict bool
}

func (o BroadcasterOptions) copy() *BroadcasterOptions {
	return &o
}

// Broadcaster delivers every published value to every connected subscriber.
// Each subscriber owns an independent bounded buffer, so one consumer can lag
// without values intermixing or being lost for the others; the publisher is
// throttled by whichever buffer is full until its consumer catches up.
//
// All methods are safe for concurrent use. Values published from a single
// goroutine arrive in publish order at every subscriber.
type Broadcaster[T any] struct {
	mut         sync.Mutex
	subscribers []*Subscriber[T]
	opts        *BroadcasterOptions
}

// NewBroadcaster creates a Broadcaster with default options.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return NewBroadcasterWithOptions[T](nil)
}

// NewBroadcasterWithOptions creates a Broadcaster with the provided options.
// Passing nil is equivalent to NewBroadcaster.
func NewBroadcasterWithOptions[T any](opts *BroadcasterOptions) *Broadcaster[T] {
	if opts == nil {
		opts = &BroadcasterOptions{}
	}
	opts = opts.copy()
	if opts.DefaultCapacity < 1 {
		opts.DefaultCapacity = 1
	}
	return &Broadcaster[T]{opts: opts}
}

// Connect attaches a new subscriber with the default buffer capacity. The
// subscriber only receives values published after it connected.
func (b *Broadcaster[T]) Connect() *Subscriber[T] {
	return b.ConnectWithCapacity(0)
}

// ConnectWithCapacity attaches a new subscriber whose buffer holds up to
// capacity values. Capacities below 1 fall back to the broadcaster default.
func (b *Broadcaster[T]) ConnectWithCapacity(capacity int) *Subscriber[T] {
	b.mut.Lock()
	defer b.mut.Unlock()

	if capacity < 1 {
		capacity = b.opts.DefaultCapacity
	}
	s := newSubscriber(b, capacity)
	b.subscribers = append(b.subscribers, s)
	return s
}

// Disconnect detaches s from the broadcaster without closing it: values
// already buffered remain readable, no new ones arrive. Detaching an unknown
// subscriber has no effect.
func (b *Broadcaster[T]) Disconnect(s *Subscriber[T]) {
	b.mut.Lock()
	defer b.mut.Unlock()

	if i := slices.Index(b.subscribers, s); i >= 0 {
		b.subscribers = slices.Delete(b.subscribers, i, i+1)
	}
}

// Subscribers returns the number of connected subscribers.
func (b *Broadcaster[T]) Subscribers() int {
	b.mut.Lock()
	defer b.mut.Unlock()
	return len(b.subscribers)
}

// IsClosed reports whether the broadcaster currently has no subscribers. A
// strict broadcaster rejects publishes while in this state.
func (b *Broadcaster[T]) IsClosed() bool {
	return b.Subscribers() == 0
}

// Publish delivers value to every subscriber connected at the time of the
// call and returns once it sits in all their buffers. A full buffer blocks
// the delivery to that subscriber until its consumer reads or the subscriber
// is closed; ctx aborts whatever deliveries are still blocked. Without any
// subscriber the value is dropped, or rejected when the broadcaster is
// strict.
func (b *Broadcaster[T]) Publish(ctx context.Context, value T) error {
	b.mut.Lock()
	subscribers := slices.Clone(b.subscribers)
	strict := b.opts.Strict
	b.mut.Unlock()

	if len(subscribers) == 0 {
		if strict {
			return errBroadcastClosed
		}
		return nil
	}

	var (
		wg   sync.WaitGroup
		once sync.Once
		err  error
	)
	wg.Add(len(subscribers))
	for _, s := range subscribers {
		s := s
		go func() {
			defer wg.Done()
			// A subscriber closing mid-delivery just drops the value for
			// itself; only a cancelled publish context is an error.
			if pushErr := s.push(ctx, value); pushErr != nil && !IsSubscriberClosed(pushErr) {
				once.Do(func() { err = pushErr })
			}
		}()
	}
	wg.Wait()
	return err
}

// Subscriber is one consumer's buffered view onto a Broadcaster. Values are
// read in publish order. A subscriber is closed by its consumer; closing
// detaches it and discards whatever is buffered.
//
// All methods are safe for concurrent use.
type Subscriber[T any] struct {
	b *Broadcaster[T]

	mut      sync.Mutex
	buf      []T
	capacity int
	closed   bool

	// readable and writable are generation channels: whoever makes the
	// buffer readable or writable again closes the current generation to
	// wake all waiters and installs the next one. done is closed once, by
	// Close.
	readable chan struct{}
	writable chan struct{}
	done     chan struct{}
}

func newSubscriber[T any](b *Broadcaster[T], capacity int) *Subscriber[T] {
	return &Subscriber[T]{
		b:        b,
		capacity: capacity,
		readable: make(chan struct{}),
		writable: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// wake releases every goroutine blocked on the given generation channel.
// Callers must hold s.mut.
func (s *Subscriber[T]) wake(generation *chan struct{}) {
	close(*generation)
	*generation = make(chan struct{})
}

// push enqueues value, blocking while the buffer is full. The value is
// dropped with an error when the subscriber closes first or ctx is done.
func (s *Subscriber[T]) push(ctx context.Context, value T) error {
	for {
		s.mut.Lock()
		if s.closed {
			s.mut.Unlock()
			return errSubscriberClosed
		}
		if len(s.buf) < s.capacity {
			s.buf = append(s.buf, value)
			s.wake(&s.readable)
			s.mut.Unlock()
			return nil
		}
		wait := s.writable
		s.mut.Unlock()

		select {
		case <-wait:
		case <-s.done:
			return errSubscriberClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Read returns the oldest buffered value, blocking while the buffer is empty.
// It fails with the context error when ctx is done first, or with the
// subscriber-closed error once the subscriber is closed; the latter is
// terminal and marks the end of the stream.
func (s *Subscriber[T]) Read(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mut.Lock()
		if len(s.buf) > 0 {
			value := s.buf[0]
			s.buf[0] = zero
			s.buf = s.buf[1:]
			s.wake(&s.writable)
			s.mut.Unlock()
			return value, nil
		}
		if s.closed {
			s.mut.Unlock()
			return zero, errSubscriberClosed
		}
		wait := s.readable
		s.mut.Unlock()

		select {
		case <-wait:
		case <-s.done:
			// Close discards the buffer, so the re-check above terminates.
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Reset discards every buffered value without closing the subscriber. A
// publisher blocked on the full buffer gets to deliver. Resetting a closed or
// empty subscriber has no effect.
func (s *Subscriber[T]) Reset() {
	s.mut.Lock()
	defer s.mut.Unlock()

	if s.closed || len(s.buf) == 0 {
		return
	}
	s.buf = nil
	s.wake(&s.writable)
}

// Close detaches the subscriber from its broadcaster, discards the buffer and
// marks the end of the stream: pending and future reads fail with the
// subscriber-closed error, pending and future deliveries drop their value.
// Closing an already closed subscriber has no effect.
func (s *Subscriber[T]) Close() {
	s.b.Disconnect(s)

	s.mut.Lock()
	defer s.mut.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.buf = nil
	close(s.done)
}

// Len returns the number of values currently buffered.
func (s *Subscriber[T]) Len() int {
	s.mut.Lock()
	defer s.mut.Unlock()
	return len(s.buf)
}

// Cap returns the buffer capacity the subscriber was connected with.
func (s *Subscriber[T]) Cap() int {
	return s.capacity
}

// IsClosed reports whether the subscriber has been closed.
func (s *Subscriber[T]) IsClosed() bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.closed
}
