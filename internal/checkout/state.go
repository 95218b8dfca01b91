package checkout

// State is where a checkout instance is in its payment lifecycle.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingElementReady State = "awaitingElementReady"
	StateSubmitting           State = "submitting"
	StateSucceeded            State = "succeeded"
	StateFailed               State = "failed"
	StateCancelled            State = "cancelled"
)

var transitions = map[State][]State{
	StateIdle:                 {StateAwaitingElementReady},
	StateAwaitingElementReady: {StateIdle, StateSubmitting, StateCancelled},
	StateSubmitting:           {StateSucceeded, StateFailed, StateCancelled},
	StateFailed:               {StateAwaitingElementReady},
	StateCancelled:            {StateAwaitingElementReady},
}

// CanTransitionTo reports whether next is reachable from s in one step.
// Succeeded is terminal.
func (s State) CanTransitionTo(next State) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}
