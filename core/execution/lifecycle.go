package execution

import "fmt"

// State is a step in the per-invocation state machine.
type State string

const (
	StateCreated        State = "created"
	StateRunning        State = "running"
	StateCompletedOK    State = "completed_ok"
	StateCompletedError State = "completed_error"
	StateTimedOut       State = "timed_out"
	StateCleanedUp      State = "cleaned_up"
)

var transitions = map[State][]State{
	StateCreated:        {StateRunning},
	StateRunning:        {StateCompletedOK, StateCompletedError, StateTimedOut},
	StateCompletedOK:    {StateCleanedUp},
	StateCompletedError: {StateCleanedUp},
	StateTimedOut:       {StateCleanedUp},
}

// Terminal reports whether s is one of the three outcome states.
func (s State) Terminal() bool {
	switch s {
	case StateCompletedOK, StateCompletedError, StateTimedOut:
		return true
	}
	return false
}

type lifecycle struct {
	states []State
}

func newLifecycle() *lifecycle {
	return &lifecycle{states: []State{StateCreated}}
}

func (l *lifecycle) current() State {
	return l.states[len(l.states)-1]
}

func (l *lifecycle) advance(next State) error {
	cur := l.current()
	for _, allowed := range transitions[cur] {
		if allowed == next {
			l.states = append(l.states, next)
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", cur, next)
}

func (l *lifecycle) history() []State {
	out := make([]State, len(l.states))
	copy(out, l.states)
	return out
}
