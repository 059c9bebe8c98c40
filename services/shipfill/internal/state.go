package internal

import "fmt"

type State int

const (
	StateResolving State = iota
	StateConnecting
	StateHandshaking
	StateAwaitingSchema
	StateStreaming
	StateClosed
)

var stateNames = [...]string{
	StateResolving:      "resolving",
	StateConnecting:     "connecting",
	StateHandshaking:    "handshaking",
	StateAwaitingSchema: "awaiting_schema",
	StateStreaming:      "streaming",
	StateClosed:         "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StateNames lists every state name, in order.
func StateNames() []string {
	return stateNames[:]
}

type Event int

const (
	EventStart Event = iota
	EventResolved
	EventConnected
	EventHandshaken
	// EventMessage means a received message was fully handled.
	EventMessage
	// EventStop is a requested shutdown: the stop height or Close.
	EventStop
	EventFailed
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventResolved:
		return "resolved"
	case EventConnected:
		return "connected"
	case EventHandshaken:
		return "handshaken"
	case EventMessage:
		return "message"
	case EventStop:
		return "stop"
	case EventFailed:
		return "failed"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Effect is the single network operation the session performs next.
type Effect int

const (
	EffectNone Effect = iota
	EffectResolve
	EffectConnect
	EffectHandshake
	EffectRead
	EffectClose
)

func (e Effect) String() string {
	switch e {
	case EffectNone:
		return "none"
	case EffectResolve:
		return "resolve"
	case EffectConnect:
		return "connect"
	case EffectHandshake:
		return "handshake"
	case EffectRead:
		return "read"
	case EffectClose:
		return "close"
	}
	return fmt.Sprintf("effect(%d)", int(e))
}

// Transition returns the next state and the effect to perform. Stop and
// failure close the session from any state; an event that does not belong
// to the current state is treated as a failure.
func Transition(s State, e Event) (State, Effect) {
	if s == StateClosed {
		return StateClosed, EffectNone
	}
	switch e {
	case EventStop, EventFailed:
		return StateClosed, EffectClose
	}

	switch {
	case s == StateResolving && e == EventStart:
		return StateResolving, EffectResolve
	case s == StateResolving && e == EventResolved:
		return StateConnecting, EffectConnect
	case s == StateConnecting && e == EventConnected:
		return StateHandshaking, EffectHandshake
	case s == StateHandshaking && e == EventHandshaken:
		return StateAwaitingSchema, EffectRead
	case s == StateAwaitingSchema && e == EventMessage:
		return StateStreaming, EffectRead
	case s == StateStreaming && e == EventMessage:
		return StateStreaming, EffectRead
	}
	return StateClosed, EffectClose
}
