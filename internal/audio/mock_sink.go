package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pocketreader/readaloud/internal/speech"
)

// MockSink implements speech.AudioSink without touching an audio device.
// Each load plays in virtual time (40ms by default, four progress steps),
// which keeps pipeline tests fast and deterministic. Loaded payloads are
// recorded as strings so tests can assert playback order.
type MockSink struct {
	mu      sync.Mutex
	loaded  []string
	played  []string
	events  chan speech.SinkEvent
	stopCh  chan struct{}
	playing bool

	// pause gate: closed while not paused
	unpaused chan struct{}

	speed   float64
	segDur  time.Duration
	steps   int

	// Failure injection.
	refuseNext atomic.Int32
	failLoad   error
	failPlay   error
	failDuring error

	playCount   atomic.Int64
	pauseCount  atomic.Int64
	resumeCount atomic.Int64
	stopCount   atomic.Int64
}

// NewMockSink creates a mock sink with the default virtual segment length.
func NewMockSink() *MockSink {
	unpaused := make(chan struct{})
	close(unpaused)
	return &MockSink{
		unpaused: unpaused,
		speed:    1.0,
		segDur:   40 * time.Millisecond,
		steps:    4,
	}
}

// SetSegmentDuration overrides the virtual play time per load.
func (m *MockSink) SetSegmentDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segDur = d
}

// RefusePlays makes the next n Play calls return ErrPlaybackRefused.
func (m *MockSink) RefusePlays(n int) {
	m.refuseNext.Store(int32(n))
}

// FailLoad makes subsequent Load calls fail with err; nil clears it.
func (m *MockSink) FailLoad(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLoad = err
}

// FailPlay makes subsequent Play calls fail with err; nil clears it.
func (m *MockSink) FailPlay(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPlay = err
}

// FailDuringPlayback makes the next playback emit a SinkFailed event
// midway instead of finishing; nil clears it.
func (m *MockSink) FailDuringPlayback(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDuring = err
}

// Load records the payload and rebinds the event stream.
func (m *MockSink) Load(res *speech.SynthesisResult, speed float64) (<-chan speech.SinkEvent, error) {
	if res == nil {
		return nil, errors.New("nil result")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failLoad != nil {
		return nil, m.failLoad
	}
	m.stopLocked()

	m.loaded = append(m.loaded, string(res.Audio))
	m.speed = speed
	m.events = make(chan speech.SinkEvent, 16)
	return m.events, nil
}

// Play starts the virtual playback goroutine for the current load.
func (m *MockSink) Play() error {
	if m.refuseNext.Load() > 0 {
		m.refuseNext.Add(-1)
		return speech.ErrPlaybackRefused
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failPlay != nil {
		return m.failPlay
	}
	if m.events == nil {
		return errors.New("no audio loaded")
	}
	if m.playing {
		return nil
	}

	m.playing = true
	m.played = append(m.played, m.loaded[len(m.loaded)-1])
	m.playCount.Add(1)

	m.stopCh = make(chan struct{})
	go m.run(m.events, m.stopCh, m.segDur, m.failDuring)
	m.failDuring = nil
	return nil
}

// Pause closes the virtual play clock.
func (m *MockSink) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.unpaused:
		m.unpaused = make(chan struct{})
		m.pauseCount.Add(1)
	default:
	}
	return nil
}

// Resume reopens the virtual play clock.
func (m *MockSink) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.unpaused:
	default:
		close(m.unpaused)
		m.resumeCount.Add(1)
	}
	return nil
}

// Stop cancels the virtual playback and closes the event stream without a
// terminal event.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.stopCount.Add(1)
	return nil
}

func (m *MockSink) stopLocked() {
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	if m.events != nil {
		close(m.events)
		m.events = nil
	}
	m.playing = false
}

// SetSpeed records the new rate.
func (m *MockSink) SetSpeed(speed float64) error {
	if speed <= 0 {
		return errors.New("speed must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speed = speed
	return nil
}

// run advances virtual time in fixed steps, honoring the pause gate, and
// delivers exactly one terminal event unless stopped first.
func (m *MockSink) run(events chan speech.SinkEvent, stop <-chan struct{}, dur time.Duration, failAt error) {
	step := dur / time.Duration(m.steps)
	for i := 1; i <= m.steps; i++ {
		select {
		case <-stop:
			return
		case <-m.pauseGate():
		}
		select {
		case <-stop:
			return
		case <-time.After(step):
		}

		if failAt != nil && i == m.steps/2 {
			m.deliver(events, stop, speech.SinkEvent{Kind: speech.SinkFailed, Err: failAt})
			return
		}
		m.deliver(events, stop, speech.SinkEvent{
			Kind:     speech.SinkProgress,
			Position: step * time.Duration(i),
			Duration: dur,
		})
	}
	m.deliver(events, stop, speech.SinkEvent{Kind: speech.SinkEnded})

	m.mu.Lock()
	if m.events == events {
		m.playing = false
	}
	m.mu.Unlock()
}

// deliver sends unless the sink was stopped, in which case the channel may
// already be closed.
func (m *MockSink) deliver(events chan speech.SinkEvent, stop <-chan struct{}, ev speech.SinkEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-stop:
		return
	default:
	}
	if m.events != events {
		return
	}
	select {
	case events <- ev:
	default:
	}
}

func (m *MockSink) pauseGate() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unpaused
}

// Loaded returns the payloads handed to Load, in order.
func (m *MockSink) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.loaded))
	copy(out, m.loaded)
	return out
}

// Played returns the payloads that actually started playing, in order.
func (m *MockSink) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.played))
	copy(out, m.played)
	return out
}

// Counts returns the number of Play, Pause, Resume and Stop calls.
func (m *MockSink) Counts() (play, pause, resume, stop int64) {
	return m.playCount.Load(), m.pauseCount.Load(), m.resumeCount.Load(), m.stopCount.Load()
}

// Speed returns the last speed handed to the sink.
func (m *MockSink) Speed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

var _ speech.AudioSink = (*MockSink)(nil)
