package speech

import "testing"

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Phase
		to   Phase
		want bool
	}{
		{"idle to loading", PhaseIdle, PhaseLoading, true},
		{"idle to playing", PhaseIdle, PhasePlaying, false},
		{"loading to playing", PhaseLoading, PhasePlaying, true},
		{"loading to error", PhaseLoading, PhaseError, true},
		{"loading to idle", PhaseLoading, PhaseIdle, true},
		{"playing to paused", PhasePlaying, PhasePaused, true},
		{"playing to loading", PhasePlaying, PhaseLoading, false},
		{"paused to playing", PhasePaused, PhasePlaying, true},
		{"paused to paused", PhasePaused, PhasePaused, false},
		{"paused to error", PhasePaused, PhaseError, false},
		{"stopping to idle", PhaseStopping, PhaseIdle, true},
		{"stopping to playing", PhaseStopping, PhasePlaying, false},
		{"error to idle", PhaseError, PhaseIdle, true},
		{"error to loading", PhaseError, PhaseLoading, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newPhaseMachine()
			m.current = tt.from
			if got := m.transition(tt.to); got != tt.want {
				t.Errorf("transition(%v -> %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
			if tt.want && m.current != tt.to {
				t.Errorf("current = %v after valid transition to %v", m.current, tt.to)
			}
			if !tt.want && m.current != tt.from {
				t.Errorf("current = %v after rejected transition, want %v", m.current, tt.from)
			}
		})
	}
}

func TestSnapshotPredicates(t *testing.T) {
	if !(Snapshot{Phase: PhaseLoading}).IsPlaying() {
		t.Error("loading should count as playing")
	}
	if !(Snapshot{Phase: PhasePlaying}).IsPlaying() {
		t.Error("playing should count as playing")
	}
	if !(Snapshot{Phase: PhasePaused}).IsPaused() {
		t.Error("paused should count as paused")
	}
	if !(Snapshot{Phase: PhaseIdle}).IsStopped() {
		t.Error("idle should count as stopped")
	}
	if !(Snapshot{Phase: PhaseError}).IsStopped() {
		t.Error("error should count as stopped")
	}
	if (Snapshot{Phase: PhasePaused}).IsStopped() {
		t.Error("paused is not stopped")
	}
}
