package speech

// Phase represents the lifecycle phase of a playback session.
type Phase int

const (
	// PhaseIdle indicates no session is active.
	PhaseIdle Phase = iota
	// PhaseLoading indicates the first segment is being synthesized.
	PhaseLoading
	// PhasePlaying indicates audio is being played.
	PhasePlaying
	// PhasePaused indicates playback is suspended at the current position.
	PhasePaused
	// PhaseStopping indicates the session is tearing down.
	PhaseStopping
	// PhaseError indicates the session ended with a fatal error.
	PhaseError
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseStopping:
		return "stopping"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// phaseMachine validates phase transitions for the controller. It is not
// safe for concurrent use; the controller serializes access under its own
// mutex.
type phaseMachine struct {
	current     Phase
	transitions map[Phase][]Phase
}

func newPhaseMachine() *phaseMachine {
	return &phaseMachine{
		current: PhaseIdle,
		transitions: map[Phase][]Phase{
			PhaseIdle:     {PhaseLoading},
			PhaseLoading:  {PhasePlaying, PhaseStopping, PhaseError, PhaseIdle},
			PhasePlaying:  {PhasePaused, PhaseStopping, PhaseError, PhaseIdle},
			PhasePaused:   {PhasePlaying, PhaseStopping},
			PhaseStopping: {PhaseIdle},
			PhaseError:    {PhaseIdle},
		},
	}
}

// transition moves to the given phase if the transition is valid and
// reports whether it happened.
func (m *phaseMachine) transition(to Phase) bool {
	for _, p := range m.transitions[m.current] {
		if p == to {
			m.current = to
			return true
		}
	}
	return false
}

// Snapshot is the externally observable session state, derived strictly
// from the controller's phase rather than from incidental sink flags.
type Snapshot struct {
	Phase        Phase
	SessionID    uint64
	CurrentIndex int
	Total        int
	Speed        float64
	Voice        string
}

// IsPlaying reports whether a session is actively playing or loading.
func (s Snapshot) IsPlaying() bool {
	return s.Phase == PhasePlaying || s.Phase == PhaseLoading
}

// IsPaused reports whether the session is paused.
func (s Snapshot) IsPaused() bool { return s.Phase == PhasePaused }

// IsStopped reports whether no session is active.
func (s Snapshot) IsStopped() bool {
	return s.Phase == PhaseIdle || s.Phase == PhaseError
}
