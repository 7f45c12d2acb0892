package audio

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/pocketreader/readaloud/internal/speech"
)

// SinkConfig configures the oto playback device.
type SinkConfig struct {
	SampleRate int           // 44100 or 48000 Hz
	Channels   int           // 1 = mono, 2 = stereo
	BufferSize time.Duration // device buffer length
}

// DefaultSinkConfig returns the standard device configuration. TTS output
// is mono speech, so the device follows suit.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		SampleRate: 44100,
		Channels:   1,
		BufferSize: 100 * time.Millisecond,
	}
}

// progressInterval is how often the watcher reports playback position.
const progressInterval = 100 * time.Millisecond

// OtoSink implements speech.AudioSink on a single oto device. The device
// context is created once; until the platform reports it ready, Play
// returns speech.ErrPlaybackRefused so the controller can park the attempt
// and retry on an explicit user action.
type OtoSink struct {
	context *oto.Context
	ready   <-chan struct{}

	mu     sync.Mutex
	player *oto.Player

	// base is the decoded segment at device rate and natural speed.
	// scaled is what the player actually reads, resized for the current
	// speed. Both stay referenced until Stop so the device never reads
	// freed memory.
	base   *PCM
	scaled *PCM

	speed       float64
	srcConsumed time.Duration // source time played by previous players of this load
	startTime   time.Time
	pausedAt    time.Duration
	totalPause  time.Duration
	playing     bool
	paused      bool

	events    chan speech.SinkEvent
	watchStop chan struct{}

	cfg SinkConfig
}

// NewOtoSink opens the playback device. The returned sink is usable
// immediately; Play reports refusal until the device becomes ready.
func NewOtoSink(cfg SinkConfig) (*OtoSink, error) {
	if cfg.SampleRate != 44100 && cfg.SampleRate != 48000 {
		return nil, fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("channels must be 1 or 2, got %d", cfg.Channels)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100 * time.Millisecond
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   cfg.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("opening audio device: %w", err)
	}

	return &OtoSink{
		context: ctx,
		ready:   ready,
		speed:   1.0,
		cfg:     cfg,
	}, nil
}

// Load decodes the payload and rebinds the sink's event stream to it. Any
// previous load is stopped first.
func (s *OtoSink) Load(res *speech.SynthesisResult, speed float64) (<-chan speech.SinkEvent, error) {
	if res == nil || len(res.Audio) == 0 {
		return nil, errors.New("empty audio payload")
	}
	if speed <= 0 {
		speed = 1.0
	}

	pcm, err := DecodeWAV(res.Audio)
	if err != nil {
		return nil, fmt.Errorf("decoding segment audio: %w", err)
	}
	pcm = Resample(pcm, s.cfg.SampleRate)
	if pcm.Channels != s.cfg.Channels {
		return nil, fmt.Errorf("segment has %d channels, device expects %d", pcm.Channels, s.cfg.Channels)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked(false)

	s.base = pcm
	s.scaled = TimeScale(pcm, speed)
	s.speed = speed
	s.srcConsumed = 0
	s.pausedAt = 0
	s.totalPause = 0
	s.playing = false
	s.paused = false
	s.events = make(chan speech.SinkEvent, 16)

	log.Debug("segment loaded", "bytes", len(res.Audio), "duration", pcm.Duration(), "speed", speed)
	return s.events, nil
}

// Play starts playback of the loaded audio. While the device is not yet
// ready it returns speech.ErrPlaybackRefused without consuming the load.
func (s *OtoSink) Play() error {
	select {
	case <-s.ready:
	default:
		return speech.ErrPlaybackRefused
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scaled == nil || s.events == nil {
		return errors.New("no audio loaded")
	}
	if s.playing {
		return nil
	}

	s.player = s.context.NewPlayer(bytes.NewReader(s.scaled.Data))
	s.player.Play()
	s.startTime = time.Now()
	s.playing = true
	s.paused = false

	s.watchStop = make(chan struct{})
	go s.watch(s.events, s.watchStop)
	return nil
}

// Pause suspends playback.
func (s *OtoSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing || s.paused {
		return nil
	}
	s.pausedAt = s.elapsedLocked()
	s.paused = true
	if s.player != nil {
		s.player.Pause()
	}
	return nil
}

// Resume continues from the paused position.
func (s *OtoSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing || !s.paused {
		return nil
	}
	// Total pause is all wall time not spent playing.
	s.totalPause = time.Since(s.startTime) - s.pausedAt
	s.paused = false
	if s.player != nil {
		s.player.Play()
	}
	return nil
}

// Stop halts playback, closes the event stream without a terminal event
// and releases the loaded audio. Safe to call in any state.
func (s *OtoSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(true)
	return nil
}

func (s *OtoSink) stopLocked(release bool) {
	if s.watchStop != nil {
		close(s.watchStop)
		s.watchStop = nil
	}
	if s.player != nil {
		s.player.Pause()
		s.player.Close()
		s.player = nil
	}
	if s.events != nil {
		close(s.events)
		s.events = nil
	}
	s.playing = false
	s.paused = false
	if release {
		s.base = nil
		s.scaled = nil
	}
}

// SetSpeed changes the playback rate of the current segment. The player
// is rebuilt over the remaining source samples, resized for the new rate.
func (s *OtoSink) SetSpeed(speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("speed must be positive, got %.2f", speed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.base == nil {
		s.speed = speed
		return nil
	}
	if !s.playing {
		s.speed = speed
		s.scaled = TimeScale(s.base, speed)
		return nil
	}

	srcPos := s.sourcePositionLocked()
	remainder := s.sliceFrom(srcPos)
	wasPaused := s.paused

	if s.player != nil {
		s.player.Pause()
		s.player.Close()
	}

	s.speed = speed
	s.scaled = TimeScale(remainder, speed)
	s.srcConsumed = srcPos
	s.startTime = time.Now()
	s.pausedAt = 0
	s.totalPause = 0
	s.paused = wasPaused

	s.player = s.context.NewPlayer(bytes.NewReader(s.scaled.Data))
	if !wasPaused {
		s.player.Play()
	}
	return nil
}

// watch reports progress on a ticker and delivers the terminal event when
// the segment's source time runs out.
func (s *OtoSink) watch(events chan speech.SinkEvent, stop <-chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.events != events || !s.playing {
				s.mu.Unlock()
				return
			}
			if s.paused {
				s.mu.Unlock()
				continue
			}
			pos := s.sourcePositionLocked()
			dur := s.base.Duration()
			done := pos >= dur
			if done {
				// Let the device drain its buffer before the player
				// is torn down.
				if s.player != nil && s.player.IsPlaying() {
					done = false
					pos = dur
				}
			}
			if done {
				s.playing = false
				if s.player != nil {
					s.player.Close()
					s.player = nil
				}
				// Emitted with the lock held so Stop cannot close the
				// channel mid-send.
				s.emit(events, speech.SinkEvent{Kind: speech.SinkEnded})
				s.mu.Unlock()
				return
			}
			s.emit(events, speech.SinkEvent{Kind: speech.SinkProgress, Position: pos, Duration: dur})
			s.mu.Unlock()
		}
	}
}

func (s *OtoSink) emit(events chan speech.SinkEvent, ev speech.SinkEvent) {
	select {
	case events <- ev:
	default:
		log.Debug("sink event dropped", "kind", ev.Kind)
	}
}

// elapsedLocked is wall time into the current player, pauses excluded.
func (s *OtoSink) elapsedLocked() time.Duration {
	if s.paused {
		return s.pausedAt
	}
	return time.Since(s.startTime) - s.totalPause
}

// sourcePositionLocked converts elapsed play time into source time.
func (s *OtoSink) sourcePositionLocked() time.Duration {
	pos := s.srcConsumed + time.Duration(float64(s.elapsedLocked())*s.speed)
	if dur := s.base.Duration(); pos > dur {
		pos = dur
	}
	return pos
}

// sliceFrom returns the base PCM from the given source offset, frame
// aligned.
func (s *OtoSink) sliceFrom(offset time.Duration) *PCM {
	frameSize := 2 * s.base.Channels
	frame := int(offset.Seconds() * float64(s.base.SampleRate))
	start := frame * frameSize
	if start > len(s.base.Data) {
		start = len(s.base.Data)
	}
	return &PCM{
		Data:       s.base.Data[start:],
		SampleRate: s.base.SampleRate,
		Channels:   s.base.Channels,
	}
}

var _ speech.AudioSink = (*OtoSink)(nil)
