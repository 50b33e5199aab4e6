package servicekit

import "fmt"

// ServiceState represents a state in the service lifecycle state machine. The
// state machine provided by this package is a cycle:
//
//	+--------------+      +--------------+
//	| Stopped      +------> Starting     |
//	+-^------------+      +-+------------+
//	  |                     |
//	+-+------------+      +-v------------+
//	| Stopping     <------+ Running      |
//	+--------------+      +--------------+
//
// A failed start hook moves the service from Starting straight back to
// Stopped, so Stopped is always reachable again and a service can be
// restarted any number of times.
type ServiceState uint8

const (
	// Stopped is the initial and final state of every run. No service
	// routine executes in it.
	Stopped ServiceState = iota
	// Starting represents a service running its start hook, before the main
	// routine exists.
	Starting
	// Running represents a service whose main routine is executing.
	Running
	// Stopping represents a service tearing down gracefully. The stop hook
	// runs, then the main routine and every auxiliary task is awaited.
	Stopping
)

func (s ServiceState) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return fmt.Sprintf("%d", int(s))
	}
}

// StateChange is the value emitted to lifecycle subscribers on every
// transition a service makes. Subscribers shared between services tell the
// origins apart by the Service field.
type StateChange struct {
	// Service that made the transition.
	Service *Service
	// State the service transitioned to.
	State ServiceState
}
