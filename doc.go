// Package servicekit provides primitives for coordinating long-running
// concurrent work: lifecycle-managed services, awaitable task groups,
// listener notification and buffered fan-out between goroutines.
//
// A periodic worker could look like:
//
//	done := make(chan struct{})
//	go func() {
//	    defer close(done)
//	    for {
//	        select {
//	        case <-time.After(time.Second):
//	            poll()
//	        case <-stop:
//	            return
//	        }
//	    }
//	}()
//
// This is pretty simple code for simple projects, but lacks powerful state
// management. To add graceful startup and teardown, restarts, observable
// state transitions or stopping on SIGTERM, one would need to write
// boilerplate code.
//
// Using servicekit, you can modify your code like:
//
//	svc := servicekit.NewService(&servicekit.Hooks{
//	    Name:    "poller",
//	    OnStart: openConnections,
//	    OnWork: func(ctx context.Context) error {
//	        for {
//	            if err := servicekit.Sleep(ctx, time.Second); err != nil {
//	                return nil
//	            }
//	            poll()
//	        }
//	    },
//	    OnStop: closeConnections,
//	})
//	svc.Start(ctx)
//	svc.Wait(ctx)
//
// Out of the box, this provides you with:
//
//	• Start, Stop, Restart and Wait methods with safe concurrent use
//	• A cycle of Stopped, Starting, Running and Stopping states with
//	  subscribable transitions
//	• Stopping on SIGHUP, SIGTERM and SIGINT via a process-wide notifier
//	• An auxiliary TaskGroup per service, cancelled and drained on stop
//	• Logging by providing your logger
//
// Beyond Service, the package provides the building blocks on their own: a
// generic Notifier delivering values to dynamic listener sets, a TaskGroup
// tracking cancellable and uncancellable background tasks, and a Broadcaster
// fanning values out to independently buffered subscribers with
// backpressure.
//
// This package also provides a Host, which wraps multiple services into a
// single startable unit exposing the same API.
package servicekit
