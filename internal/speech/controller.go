package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Config holds the tunable constants of the sequencer. The read-ahead
// schedule (one segment requested at playback start, a second at the
// progress threshold) balances hiding synthesis latency against wasting
// synthesis on segments the listener may never reach.
type Config struct {
	// StartLookahead is how many segments ahead to request when a
	// segment begins playing.
	StartLookahead int

	// ThresholdLookahead is how many segments ahead to request once the
	// current segment passes ReadAheadThreshold.
	ThresholdLookahead int

	// ReadAheadThreshold is the played fraction of the current segment
	// at which the second prefetch fires.
	ReadAheadThreshold float64

	// NotifyBuffer is the capacity of the notification channel.
	NotifyBuffer int
}

// DefaultConfig returns the standard sequencer configuration.
func DefaultConfig() Config {
	return Config{
		StartLookahead:     1,
		ThresholdLookahead: 2,
		ReadAheadThreshold: 0.70,
		NotifyBuffer:       64,
	}
}

// loadingPercent is the preparation progress reported when a session
// starts synthesizing its first segment.
const loadingPercent = 10

// session is the state of one playback run. Exactly one session is active
// at a time; its id is compared against the controller's generation
// counter so completions from a superseded session are discarded.
type session struct {
	id       uint64
	url      string
	segments []Segment
	voice    string
	start    int

	cache  *PrefetchCache
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	pauseMu  sync.Mutex
	unpaused chan struct{} // closed while not paused
}

// setPaused opens or closes the pause gate the sequencer waits on between
// segments.
func (s *session) setPaused(paused bool) {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()

	if paused {
		select {
		case <-s.unpaused:
			s.unpaused = make(chan struct{})
		default:
			// Already paused.
		}
		return
	}
	select {
	case <-s.unpaused:
	default:
		close(s.unpaused)
	}
}

func (s *session) pauseGate() <-chan struct{} {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	return s.unpaused
}

// Controller owns the session lifecycle and serializes all control
// commands. It drives the ordered walk over segments, pairing each one
// with highlight and position-store calls while the prefetch cache races
// ahead asynchronously.
type Controller struct {
	synth     Synthesizer
	sink      AudioSink
	store     PositionStore
	highlight HighlightSink
	cfg       Config

	mu      sync.Mutex
	machine *phaseMachine
	session *session
	current int
	voice   string
	speed   float64

	generation atomic.Uint64
	gate       gestureGate
	notifyCh   chan Notification
}

// NewController creates a playback controller. store and highlight may be
// nil, in which case the corresponding calls are no-ops.
func NewController(synth Synthesizer, sink AudioSink, store PositionStore, highlight HighlightSink, cfg Config) *Controller {
	if cfg.StartLookahead <= 0 {
		cfg.StartLookahead = 1
	}
	if cfg.ThresholdLookahead <= 0 {
		cfg.ThresholdLookahead = 2
	}
	if cfg.ReadAheadThreshold <= 0 || cfg.ReadAheadThreshold >= 1 {
		cfg.ReadAheadThreshold = 0.70
	}
	if cfg.NotifyBuffer <= 0 {
		cfg.NotifyBuffer = 64
	}
	if store == nil {
		store = nopStore{}
	}
	if highlight == nil {
		highlight = nopHighlight{}
	}
	return &Controller{
		synth:     synth,
		sink:      sink,
		store:     store,
		highlight: highlight,
		cfg:       cfg,
		machine:   newPhaseMachine(),
		speed:     DefaultSpeed,
		notifyCh:  make(chan Notification, cfg.NotifyBuffer),
	}
}

// Notifications returns the channel the controller emits session events
// on. Slow consumers drop notifications rather than stall playback.
func (c *Controller) Notifications() <-chan Notification {
	return c.notifyCh
}

// Start begins a new session over the given segments. Any prior session is
// stopped first and its asynchronous completions are invalidated by
// bumping the session generation. An empty segment list is valid and
// completes trivially.
func (c *Controller) Start(url string, segments []Segment, voice string, startIndex int, speed float64) error {
	if c.synth == nil {
		return ErrNoSynthesizer
	}
	if c.sink == nil {
		return ErrNoAudioSink
	}
	if startIndex < 0 || startIndex > len(segments) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidStartIndex, startIndex, len(segments))
	}

	// A new session first runs the stop path of the old one; the sink
	// must be released before it can be handed over.
	prev := c.activeSession()
	c.Stop()
	if prev != nil {
		<-prev.done
	}

	c.mu.Lock()
	if c.machine.current == PhaseError {
		c.machine.transition(PhaseIdle)
	}
	if !c.machine.transition(PhaseLoading) {
		c.mu.Unlock()
		return fmt.Errorf("cannot start in phase %s", c.machine.current)
	}

	gen := c.generation.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:       gen,
		url:      url,
		segments: segments,
		voice:    voice,
		start:    startIndex,
		cache:    newPrefetchCache(c.synth, voice, gen, &c.generation),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		unpaused: make(chan struct{}),
	}
	close(s.unpaused)
	c.session = s
	c.current = startIndex
	c.voice = voice
	if speed >= MinSpeed && speed <= MaxSpeed {
		c.speed = speed
	}
	c.mu.Unlock()

	log.Info("starting playback session",
		"session", gen, "segments", len(segments), "start", startIndex, "voice", voice)
	c.notify(Notification{Kind: NoteProgress, Percent: loadingPercent, Label: "Generating audio…"})

	go c.run(s)
	return nil
}

// Pause suspends playback. A no-op unless the session is playing.
func (c *Controller) Pause() {
	c.mu.Lock()
	s := c.session
	if s == nil || !c.machine.transition(PhasePaused) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	s.setPaused(true)
	if err := c.sink.Pause(); err != nil {
		log.Warn("pause failed", "err", err)
	}
	c.notify(Notification{Kind: NotePaused})
}

// Resume continues a paused session. A no-op otherwise.
func (c *Controller) Resume() {
	c.mu.Lock()
	s := c.session
	if s == nil || c.machine.current != PhasePaused || !c.machine.transition(PhasePlaying) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	s.setPaused(false)
	if err := c.sink.Resume(); err != nil {
		log.Warn("resume failed", "err", err)
	}
	c.notify(Notification{Kind: NoteResumed})
}

// Stop cancels the active session: the cache is discarded, the sink
// released and the gesture gate cleared. Stopping an idle controller is a
// no-op. Stop returns without waiting for the sequencer goroutine to
// unwind; Start waits for it before handing the sink to a new session.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.session
	if s == nil {
		if c.machine.current == PhaseError {
			c.machine.transition(PhaseIdle)
		}
		c.mu.Unlock()
		return
	}
	c.machine.transition(PhaseStopping)
	c.session = nil
	c.mu.Unlock()

	s.cancel()
	s.setPaused(false)
	c.gate.clear()
	if err := c.sink.Stop(); err != nil {
		log.Warn("sink stop failed", "err", err)
	}
	s.cache.DiscardAll()
	c.highlight.Clear()

	c.mu.Lock()
	c.machine.transition(PhaseIdle)
	c.mu.Unlock()

	log.Info("session stopped", "session", s.id)
	c.notify(Notification{Kind: NoteStopped})
}

// SetSpeed changes the playback rate. Applied live to the sink while a
// session is active; otherwise stored for the next session.
func (c *Controller) SetSpeed(speed float64) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("speed %.2f out of range [%.2f, %.2f]", speed, MinSpeed, MaxSpeed)
	}

	c.mu.Lock()
	c.speed = speed
	active := c.session != nil
	c.mu.Unlock()

	if active {
		if err := c.sink.SetSpeed(speed); err != nil {
			return fmt.Errorf("applying speed: %w", err)
		}
	}
	return nil
}

// ConfirmGesture retries the parked play attempt after the user confirmed
// the gesture prompt. It reports whether an attempt was pending.
func (c *Controller) ConfirmGesture() bool {
	return c.gate.confirm()
}

// DismissGesture rejects the parked play attempt and stops the session.
func (c *Controller) DismissGesture() bool {
	ok := c.gate.dismiss()
	if ok {
		c.Stop()
	}
	return ok
}

// State returns a snapshot of the observable session state, derived
// strictly from the controller phase.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Phase:        c.machine.current,
		SessionID:    c.generation.Load(),
		CurrentIndex: c.current,
		Speed:        c.speed,
		Voice:        c.voice,
	}
	if c.session != nil {
		snap.Total = len(c.session.segments)
	}
	return snap
}

// run is the sequencer: it walks segments in strict index order, consuming
// ready cache entries or blocking on a synchronous fetch, and awaits
// exactly one terminal sink event per segment before advancing.
func (c *Controller) run(s *session) {
	defer close(s.done)
	defer s.cancel()

	total := len(s.segments)
	for i := s.start; i < total; i++ {
		select {
		case <-s.ctx.Done():
			return
		case <-s.pauseGate():
		}

		seg := s.segments[i]
		res, ok := s.cache.Take(i)
		if !ok {
			var err error
			res, err = c.fetchSync(s, seg)
			if err != nil {
				c.fail(s, &SynthesisError{Index: i, Err: err})
				return
			}
		}
		if s.ctx.Err() != nil {
			return
		}

		// Highlight and position are recorded before audio is handed
		// to the sink, so a crash or stop mid-segment resumes here.
		if seg.HighlightRef != "" {
			c.highlight.Mark(seg.HighlightRef)
		}
		if err := c.store.Save(s.url, i, total); err != nil {
			log.Warn("position save failed", "url", s.url, "index", i, "err", err)
		}

		events, err := c.sink.Load(res, c.currentSpeed())
		if err != nil {
			c.fail(s, &PlaybackError{Err: err})
			return
		}
		if err := c.playWithGate(s, res); err != nil {
			if errors.Is(err, ErrPlaybackCancelled) || s.ctx.Err() != nil {
				return
			}
			c.fail(s, err)
			return
		}

		c.markPlaying(s, i)
		c.notifySession(s, Notification{Kind: NotePlaying, Current: i + 1, Total: total})

		for n := 1; n <= c.cfg.StartLookahead; n++ {
			if i+n < total {
				s.cache.Request(s.ctx, s.segments[i+n])
			}
		}

		switch c.awaitSegmentEnd(s, events, i) {
		case segEnded:
			s.cache.DiscardThrough(i)
		case segStopped, segFailed:
			return
		}
	}

	if s.ctx.Err() != nil {
		return
	}
	c.complete(s)
}

// fetchSync performs the blocking synthesis call for the segment the
// sequencer is waiting on. A transient failure is retried once before it
// becomes fatal; retry policy beyond that belongs to the caller.
func (c *Controller) fetchSync(s *session, seg Segment) (*SynthesisResult, error) {
	res, err := c.synth.Synthesize(s.ctx, seg.Text, s.voice)
	if err == nil {
		return res, nil
	}
	if s.ctx.Err() != nil {
		return nil, err
	}
	log.Warn("synthesis failed, retrying", "index", seg.Index, "err", err)
	return c.synth.Synthesize(s.ctx, seg.Text, s.voice)
}

// playWithGate starts playback, routing an autoplay refusal through the
// recovery gate: the attempt is parked, the UI is notified, and a user
// confirmation retries the same audio exactly once.
func (c *Controller) playWithGate(s *session, res *SynthesisResult) error {
	for {
		err := c.sink.Play()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrPlaybackRefused) {
			return &PlaybackError{Err: err}
		}

		log.Info("playback refused, waiting for user gesture", "session", s.id)
		decision := c.gate.park(res)
		c.notifySession(s, Notification{Kind: NoteNeedsGesture})

		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case confirmed, open := <-decision:
			if !open {
				// Superseded or torn down; the context decides which.
				if s.ctx.Err() != nil {
					return s.ctx.Err()
				}
				return ErrPlaybackCancelled
			}
			if !confirmed {
				return ErrPlaybackCancelled
			}
			// Confirmed; retry the same audio. A repeat refusal parks
			// again.
		}
	}
}

type segmentOutcome int

const (
	segEnded segmentOutcome = iota
	segStopped
	segFailed
)

// awaitSegmentEnd consumes sink events for the current segment until a
// terminal one arrives. When the played fraction crosses the read-ahead
// threshold it issues the second prefetch.
func (c *Controller) awaitSegmentEnd(s *session, events <-chan SinkEvent, index int) segmentOutcome {
	thresholdFired := false
	for {
		select {
		case <-s.ctx.Done():
			return segStopped
		case ev, open := <-events:
			if !open {
				// The sink was stopped underneath us.
				return segStopped
			}
			switch ev.Kind {
			case SinkProgress:
				if thresholdFired || ev.Duration <= 0 {
					continue
				}
				frac := float64(ev.Position) / float64(ev.Duration)
				if frac >= c.cfg.ReadAheadThreshold {
					thresholdFired = true
					if n := index + c.cfg.ThresholdLookahead; n < len(s.segments) {
						s.cache.Request(s.ctx, s.segments[n])
					}
				}
			case SinkEnded:
				return segEnded
			case SinkFailed:
				if s.ctx.Err() != nil {
					// Teardown noise after an explicit stop.
					return segStopped
				}
				c.fail(s, &PlaybackError{Err: ev.Err})
				return segFailed
			}
		}
	}
}

// markPlaying transitions Loading to Playing on the first successful
// segment and records the current index.
func (c *Controller) markPlaying(s *session, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != s {
		return
	}
	c.current = index
	if c.machine.current == PhaseLoading {
		c.machine.transition(PhasePlaying)
	}
}

// complete finishes a session that played every segment: the stored
// position is cleared and the controller returns to idle.
func (c *Controller) complete(s *session) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.machine.transition(PhaseIdle)
	c.mu.Unlock()

	if err := c.sink.Stop(); err != nil {
		log.Warn("sink stop failed", "err", err)
	}
	c.highlight.Clear()
	if err := c.store.Clear(s.url); err != nil {
		log.Warn("position clear failed", "url", s.url, "err", err)
	}

	log.Info("session complete", "session", s.id, "segments", len(s.segments))
	c.notifySession(s, Notification{Kind: NoteComplete})
}

// fail tears the session down after a fatal error. The stored position is
// left at the failure point so the listener can resume.
func (c *Controller) fail(s *session, err error) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.machine.transition(PhaseError)
	c.mu.Unlock()

	s.cancel()
	if serr := c.sink.Stop(); serr != nil {
		log.Warn("sink stop failed", "err", serr)
	}
	s.cache.DiscardAll()
	c.highlight.Clear()

	log.Error("session failed", "session", s.id, "err", err)
	c.notifySession(s, Notification{Kind: NoteError, Message: err.Error()})
}

func (c *Controller) currentSpeed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

func (c *Controller) activeSession() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// notifySession emits a notification unless the session was superseded.
func (c *Controller) notifySession(s *session, n Notification) {
	if c.generation.Load() != s.id {
		return
	}
	c.notify(n)
}

func (c *Controller) notify(n Notification) {
	select {
	case c.notifyCh <- n:
	default:
		log.Warn("notification dropped", "kind", n.Kind)
	}
}

type nopStore struct{}

func (nopStore) Save(string, int, int) error         { return nil }
func (nopStore) Load(string) (int, int, bool, error) { return 0, 0, false, nil }
func (nopStore) Clear(string) error                  { return nil }

type nopHighlight struct{}

func (nopHighlight) Mark(string) {}
func (nopHighlight) Clear()      {}
