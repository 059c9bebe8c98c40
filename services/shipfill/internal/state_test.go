package internal

import "testing"

func TestTransitionHappyPath(t *testing.T) {
	steps := []struct {
		event  Event
		state  State
		effect Effect
	}{
		{EventStart, StateResolving, EffectResolve},
		{EventResolved, StateConnecting, EffectConnect},
		{EventConnected, StateHandshaking, EffectHandshake},
		{EventHandshaken, StateAwaitingSchema, EffectRead},
		{EventMessage, StateStreaming, EffectRead},
		{EventMessage, StateStreaming, EffectRead},
		{EventStop, StateClosed, EffectClose},
	}
	state := StateResolving
	for i, step := range steps {
		next, effect := Transition(state, step.event)
		if next != step.state || effect != step.effect {
			t.Fatalf("step %d: %s + %s = %s/%s, want %s/%s",
				i, state, step.event, next, effect, step.state, step.effect)
		}
		state = next
	}
}

func TestTransitionFailureClosesFromEveryState(t *testing.T) {
	for s := StateResolving; s < StateClosed; s++ {
		for _, e := range []Event{EventFailed, EventStop} {
			next, effect := Transition(s, e)
			if next != StateClosed || effect != EffectClose {
				t.Errorf("%s + %s = %s/%s", s, e, next, effect)
			}
		}
	}
}

func TestTransitionOutOfOrderEvent(t *testing.T) {
	tests := []struct {
		state State
		event Event
	}{
		{StateResolving, EventMessage},
		{StateConnecting, EventResolved},
		{StateHandshaking, EventConnected},
		{StateAwaitingSchema, EventHandshaken},
		{StateStreaming, EventStart},
	}
	for _, tt := range tests {
		if next, effect := Transition(tt.state, tt.event); next != StateClosed || effect != EffectClose {
			t.Errorf("%s + %s = %s/%s, want closed/close", tt.state, tt.event, next, effect)
		}
	}
}

func TestClosedIsTerminal(t *testing.T) {
	for e := EventStart; e <= EventFailed; e++ {
		if next, effect := Transition(StateClosed, e); next != StateClosed || effect != EffectNone {
			t.Errorf("closed + %s = %s/%s", e, next, effect)
		}
	}
}

func TestStateNames(t *testing.T) {
	if StateAwaitingSchema.String() != "awaiting_schema" || State(42).String() != "state(42)" {
		t.Error("unexpected state names")
	}
	if len(StateNames()) != int(StateClosed)+1 {
		t.Errorf("StateNames() = %v", StateNames())
	}
}
