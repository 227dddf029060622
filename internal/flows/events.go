package flows

import "github.com/MrEthical07/authsync/identity"

// EventAction is what the event bridge does with one provider event.
type EventAction int

const (
	EventIgnore EventAction = iota
	// EventResolve refetches the provider session and writes it.
	EventResolve
	// EventClear resets the store to anonymous.
	EventClear
	// EventClearAndReport resets the store and records a diagnostic.
	EventClearAndReport
)

var eventActions = map[identity.EventKind]EventAction{
	identity.EventSignedIn:            EventResolve,
	identity.EventAutoSignedIn:        EventResolve,
	identity.EventSignedOut:           EventClear,
	identity.EventSignInFailed:        EventClearAndReport,
	identity.EventSignUpFailed:        EventClearAndReport,
	identity.EventConfirmSignUpFailed: EventClearAndReport,
	identity.EventAutoSignInFailed:    EventClearAndReport,
}

// EventActionFor maps kind to its action. Unrecognized kinds are ignored.
func EventActionFor(kind identity.EventKind) EventAction {
	return eventActions[kind]
}
