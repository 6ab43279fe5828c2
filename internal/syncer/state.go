package syncer

import "fmt"

type State string

func (s State) String() string {
	return string(s)
}

const (
	StateUninitialized   State = "uninitialized"
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateError           State = "error"
)

// transitions lists, per state, where it may go next. StateError is final
// until the process restarts.
var transitions = map[State][]State{
	StateUninitialized:   {StateUnauthenticated, StateAuthenticated, StateError},
	StateUnauthenticated: {StateAuthenticating, StateAuthenticated},
	StateAuthenticating:  {StateAuthenticated, StateUnauthenticated},
	StateAuthenticated:   {StateAuthenticating, StateUnauthenticated},
}

func canTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transitionLocked moves to the next state. Caller must hold mu.
func (s *Syncer) transitionLocked(to State) error {
	if !canTransition(s.state, to) {
		return fmt.Errorf("syncer: invalid transition from %s to %s", s.state, to)
	}
	if s.state != to {
		s.logger.Debug("State changed", "from", s.state, "to", to)
	}
	s.state = to
	return nil
}
