package servicekit

import "errors"

var (
	errInvalidState     = errors.New("invalid state")
	errNotifierClosed   = errors.New("notifier closed")
	errBroadcastClosed  = errors.New("no subscriber connected")
	errSubscriberClosed = errors.New("subscriber closed")
)

// IsInvalidState returns true if the cause of the error is an invalid initial
// state, for example starting a Host that is already started.
func IsInvalidState(err error) bool {
	return errors.Is(err, errInvalidState)
}

// IsNotifierClosed returns true if the cause of the error is an AddListener or
// Emit call on a Notifier that has been closed.
func IsNotifierClosed(err error) bool {
	return errors.Is(err, errNotifierClosed)
}

// IsBroadcastClosed returns true if the cause of the error is a publish on a
// strict Broadcaster without any connected subscriber.
func IsBroadcastClosed(err error) bool {
	return errors.Is(err, errBroadcastClosed)
}

// IsSubscriberClosed returns true if the cause of the error is a read from a
// subscriber that has been closed and drained. This is the end-of-stream
// condition: once it is returned, no further value can ever arrive on that
// subscriber.
func IsSubscriberClosed(err error) bool {
	return errors.Is(err, errSubscriberClosed)
}
