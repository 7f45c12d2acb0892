package speech

import (
	"fmt"
	"math"
	"sync"
)

// Playback speed bounds and presets.
var (
	DefaultSpeedSteps = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 2.0}
	DefaultSpeed      = 1.0
	MinSpeed          = 0.5
	MaxSpeed          = 2.0
)

// SpeedControl manages the playback rate with discrete steps for the UI
// while accepting arbitrary values within bounds from the command surface.
type SpeedControl struct {
	mu      sync.RWMutex
	current float64
	steps   []float64
}

// NewSpeedControl creates a speed control with the default steps.
func NewSpeedControl() *SpeedControl {
	return NewSpeedControlWithSteps(DefaultSpeedSteps)
}

// NewSpeedControlWithSteps creates a speed control with custom steps.
func NewSpeedControlWithSteps(steps []float64) *SpeedControl {
	if len(steps) == 0 {
		steps = DefaultSpeedSteps
	}
	return &SpeedControl{current: DefaultSpeed, steps: steps}
}

// Speed returns the current playback speed.
func (s *SpeedControl) Speed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetSpeed sets the playback speed, rejecting values outside the bounds.
func (s *SpeedControl) SetSpeed(speed float64) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("speed %.2f out of range [%.2f, %.2f]", speed, MinSpeed, MaxSpeed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = speed
	return nil
}

// Increase moves to the next higher step and returns the new speed.
func (s *SpeedControl) Increase() float64 {
	return s.step(+1)
}

// Decrease moves to the next lower step and returns the new speed.
func (s *SpeedControl) Decrease() float64 {
	return s.step(-1)
}

func (s *SpeedControl) step(dir int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.nearestIndex()
	idx += dir
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	s.current = s.steps[idx]
	return s.current
}

// nearestIndex finds the step closest to the current speed. Called with
// the lock held.
func (s *SpeedControl) nearestIndex() int {
	best := 0
	bestDiff := math.Inf(1)
	for i, v := range s.steps {
		if d := math.Abs(v - s.current); d < bestDiff {
			best = i
			bestDiff = d
		}
	}
	return best
}

// Steps returns the available speed steps.
func (s *SpeedControl) Steps() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.steps))
	copy(out, s.steps)
	return out
}
