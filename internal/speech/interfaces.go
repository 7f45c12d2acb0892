package speech

import (
	"context"
	"time"
)

// Segment is one unit of text to be synthesized and played, in page order.
// The segment list is immutable for the lifetime of a session.
type Segment struct {
	Index        int    // Position in the segment list, starting at 0
	Text         string // Non-empty, trimmed text to synthesize
	HighlightRef string // Opaque highlight handle; empty means no highlight
}

// SynthesisResult holds the synthesized audio for one segment.
type SynthesisResult struct {
	Audio    []byte // Raw audio bytes as returned by the synthesizer
	MimeType string // e.g. "audio/wav"
}

// Synthesizer converts text into audio. Implementations must be safe for
// concurrent use; completion order carries no relation to request order.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*SynthesisResult, error)
}

// PositionStore persists resume positions keyed by page URL.
type PositionStore interface {
	// Save records the position for the given URL.
	Save(url string, index, total int) error

	// Load returns the stored position, or ok=false if none exists.
	Load(url string) (index, total int, ok bool, err error)

	// Clear removes the stored position for the given URL.
	Clear(url string) error
}

// HighlightSink visually marks the segment currently being spoken.
// It is purely cosmetic and feeds nothing back into the pipeline.
type HighlightSink interface {
	Mark(ref string)
	Clear()
}

// SinkEventKind identifies the kind of an audio sink event.
type SinkEventKind int

const (
	// SinkProgress reports playback position within the current segment.
	SinkProgress SinkEventKind = iota
	// SinkEnded signals the current segment finished playing.
	SinkEnded
	// SinkFailed signals a decode or IO failure during playback.
	SinkFailed
)

// SinkEvent is a notification from the audio sink about the segment most
// recently loaded. Exactly one terminal event (SinkEnded or SinkFailed) is
// delivered per load unless the sink is stopped first, in which case the
// event channel is closed without a terminal event.
type SinkEvent struct {
	Kind     SinkEventKind
	Position time.Duration // Valid for SinkProgress
	Duration time.Duration // Valid for SinkProgress
	Err      error         // Valid for SinkFailed
}

// AudioSink wraps a single reusable playable-audio resource. Load rebinds
// the event stream for the new payload; Stop is idempotent and guarantees
// that no event for a previous load is delivered after it returns.
type AudioSink interface {
	// Load prepares the sink to play the given audio at the given speed
	// and returns the event stream for this payload. The sink owns the
	// underlying resource from this point until Stop or the next Load.
	Load(res *SynthesisResult, speed float64) (<-chan SinkEvent, error)

	// Play starts playback of the loaded audio. It returns
	// ErrPlaybackRefused when the platform blocks unprompted audio
	// output, or a wrapped error on decode/IO failure.
	Play() error

	// Pause suspends playback; a paused sink emits no progress events.
	Pause() error

	// Resume continues playback from the paused position.
	Resume() error

	// Stop halts playback and releases the loaded audio. Safe to call in
	// any state and more than once.
	Stop() error

	// SetSpeed changes the playback rate of the current segment and of
	// subsequent loads.
	SetSpeed(speed float64) error
}
