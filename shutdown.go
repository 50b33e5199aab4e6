package servicekit

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// shutdownSignals are the OS signals relayed through the process-wide
// shutdown notifier.
var shutdownSignals = []os.Signal{syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT}

var (
	shutdownMu       sync.Mutex
	shutdownNotifier *Notifier[os.Signal]
	shutdownStop     func()
)

// OnShutdown returns the process-wide shutdown notifier, creating it and
// installing the signal handler on first use. The notifier relays SIGHUP,
// SIGTERM and SIGINT; every running Service listens on it unless configured
// with its own notifier, so a single signal stops them all. The notifier
// lives for the remainder of the process and is never closed.
func OnShutdown() *Notifier[os.Signal] {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()

	if shutdownNotifier != nil {
		return shutdownNotifier
	}

	notifier := NewNotifier[os.Signal]()
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, shutdownSignals...)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				_ = notifier.Emit(context.Background(), sig)
			case <-done:
				return
			}
		}
	}()

	shutdownNotifier = notifier
	shutdownStop = func() {
		signal.Stop(ch)
		close(done)
	}
	return notifier
}

// resetShutdownNotifier uninstalls the signal handler and discards the
// process-wide notifier so the next OnShutdown call builds a fresh one. Only
// tests use this.
func resetShutdownNotifier() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()

	if shutdownNotifier == nil {
		return
	}
	shutdownStop()
	shutdownNotifier.Close()
	shutdownNotifier = nil
	shutdownStop = nil
}
