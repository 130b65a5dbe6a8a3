package dispatch

// StateType represents what the dispatcher is doing.
type StateType int

const (
	// StateStopped indicates the dispatch loop is not running.
	StateStopped StateType = iota
	// StateIdle indicates the loop is waiting for an utterance.
	StateIdle
	// StateBrailling indicates a braille region is being rendered.
	StateBrailling
	// StateSpeaking indicates a fragment is being spoken.
	StateSpeaking
	// StatePaused indicates output is held at a fragment boundary.
	StatePaused
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateIdle:
		return "idle"
	case StateBrailling:
		return "brailling"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// StateMachine manages state transitions for the dispatcher. It is not
// safe for concurrent use; the dispatcher guards it.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
}

// NewStateMachine creates a new state machine with valid transitions.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateStopped,
		transitions: map[StateType][]StateType{
			StateStopped:   {StateIdle},
			StateIdle:      {StateBrailling, StateSpeaking, StatePaused, StateStopped},
			StateBrailling: {StateSpeaking, StatePaused, StateIdle, StateStopped},
			StateSpeaking:  {StatePaused, StateIdle, StateStopped},
			StatePaused:    {StateSpeaking, StateIdle, StateStopped},
		},
	}
}

// Transition attempts to transition to the specified state.
func (sm *StateMachine) Transition(to StateType) bool {
	if !sm.CanTransition(to) {
		return false
	}
	sm.current = to
	return true
}

// CanTransition reports whether moving to the state is allowed.
func (sm *StateMachine) CanTransition(to StateType) bool {
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			return true
		}
	}
	return false
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}
