package servicekit

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// HostOptions contains options for a Host.
type HostOptions struct {
	// Sets the Logger to use to log host events. If nil, the logging
	// messages are discarded.
	Logger Logger
}

func (o HostOptions) copy() *HostOptions {
	return &o
}

// Host wraps multiple services into a single startable unit. Services start
// in the order given and stop in reverse, so later services can depend on
// earlier ones. The host itself carries no state machine beyond a started
// flag; each service keeps its own lifecycle and can still be driven
// individually.
type Host struct {
	opts     *HostOptions
	services []*Service

	mut     sync.Mutex
	started bool
}

// NewHost creates a Host wrapping the provided services with default
// options.
func NewHost(services ...*Service) *Host {
	return NewHostWithOptions(nil, services...)
}

// NewHostWithOptions creates a Host wrapping the provided services.
func NewHostWithOptions(opts *HostOptions, services ...*Service) *Host {
	if opts == nil {
		opts = &HostOptions{}
	}
	return &Host{
		opts:     opts.copy(),
		services: services,
	}
}

// Services returns the hosted services in start order.
func (h *Host) Services() []*Service {
	services := make([]*Service, len(h.services))
	copy(services, h.services)
	return services
}

// Start starts every hosted service in order. If one fails to start, the
// services started so far are stopped again in reverse order and the
// combined errors are returned. Starting an already started host fails with
// an invalid state error.
func (h *Host) Start(ctx context.Context) error {
	h.mut.Lock()
	if h.started {
		h.mut.Unlock()
		return fmt.Errorf("host already started: %w", errInvalidState)
	}
	h.started = true
	h.mut.Unlock()

	for i, service := range h.services {
		err := service.Start(ctx)
		if err == nil {
			continue
		}

		h.error(err, "service failed to start -- rolling back",
			"service", service.Name())
		result := multierror.Append(nil, err)
		for j := i - 1; j >= 0; j-- {
			if stopErr := h.services[j].Stop(ctx); stopErr != nil {
				result = multierror.Append(result, stopErr)
			}
		}

		h.mut.Lock()
		h.started = false
		h.mut.Unlock()
		return result.ErrorOrNil()
	}

	h.info("host started", "services", len(h.services))
	return nil
}

// Stop stops every hosted service in reverse start order. It keeps going
// past individual failures and returns them combined. Stopping a host that
// is not started is a no-op.
func (h *Host) Stop(ctx context.Context) error {
	h.mut.Lock()
	if !h.started {
		h.mut.Unlock()
		return nil
	}
	h.started = false
	h.mut.Unlock()

	var result *multierror.Error
	for i := len(h.services) - 1; i >= 0; i-- {
		if err := h.services[i].Stop(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}

	h.info("host stopped")
	return result.ErrorOrNil()
}

// Wait blocks until every hosted service has fully stopped, teardown
// included. It returns immediately when none is running. ctx aborts the wait
// with its error.
func (h *Host) Wait(ctx context.Context) error {
	for _, service := range h.services {
		select {
		case <-service.runGate():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Run starts every hosted service and blocks until they have all stopped,
// which typically happens through a shutdown signal. Cancelling ctx stops
// the remaining services and returns once they are down. Run is the
// blocking entrypoint for a main function that has nothing else to do.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Start(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, service := range h.services {
			<-service.runGate()
		}
	}()

	select {
	case <-done:
		// Every service stopped on its own; release the started flag so the
		// host can run again.
		h.mut.Lock()
		h.started = false
		h.mut.Unlock()
		return nil
	case <-ctx.Done():
	}

	// The run context is gone; tear down with a fresh one.
	err := h.Stop(context.Background())
	<-done
	return err
}

// info logs an information message.
func (h *Host) info(msg string, keysAndValues ...interface{}) {
	if h.opts.Logger != nil {
		h.opts.Logger.Info(msg, keysAndValues...)
	}
}

// error logs an error
func (h *Host) error(err error, msg string, keysAndValues ...interface{}) {
	if h.opts.Logger != nil {
		h.opts.Logger.Error(err, msg, keysAndValues...)
	}
}
