package restore

import "fmt"

// State is the position of a restore run in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateVerifyingRepository
	StateTriggeringRestore
	StateAwaitingStart
	StateRecovering
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                "idle",
	StateVerifyingRepository: "verifying_repository",
	StateTriggeringRestore:   "triggering_restore",
	StateAwaitingStart:       "awaiting_start",
	StateRecovering:          "recovering",
	StateCompleted:           "completed",
	StateFailed:              "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// IsTerminal returns true if the state represents a final state
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// transitions lists the edges of the state machine. Every non-terminal
// state may fail; only the two polling states loop on themselves.
var transitions = map[State][]State{
	StateIdle:                {StateVerifyingRepository, StateFailed},
	StateVerifyingRepository: {StateTriggeringRestore, StateFailed},
	StateTriggeringRestore:   {StateAwaitingStart, StateFailed},
	StateAwaitingStart:       {StateAwaitingStart, StateRecovering, StateFailed},
	StateRecovering:          {StateRecovering, StateCompleted, StateFailed},
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown restore state %q", text)
}
