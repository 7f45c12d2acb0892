package speech

import (
	"errors"
	"fmt"
)

// Common errors for the playback pipeline.
var (
	// ErrPlaybackRefused is returned by AudioSink.Play when the platform
	// blocks audio output until a user gesture unlocks it.
	ErrPlaybackRefused = errors.New("playback refused: user gesture required")

	// ErrPlaybackCancelled terminates a session when the user declines
	// the gesture prompt. It is equivalent to an explicit stop.
	ErrPlaybackCancelled = errors.New("playback cancelled by user")

	// ErrInvalidStartIndex is returned by Start for an out-of-range index.
	ErrInvalidStartIndex = errors.New("start index out of range")

	// ErrNoSynthesizer is returned by Start when no synthesizer is set.
	ErrNoSynthesizer = errors.New("no synthesizer configured")

	// ErrNoAudioSink is returned by Start when no audio sink is set.
	ErrNoAudioSink = errors.New("no audio sink configured")
)

// SynthesisError reports a failed synthesis call for the segment the
// sequencer is currently blocked on. It is fatal to the session.
type SynthesisError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed for segment %d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error { return e.Err }

// PlaybackError reports a decode or IO failure from the audio sink while a
// segment was loading or playing. It is fatal to the session unless it
// arrives after an explicit stop, in which case it is teardown noise.
type PlaybackError struct {
	Err error
}

// Error implements the error interface.
func (e *PlaybackError) Error() string {
	return fmt.Sprintf("audio playback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *PlaybackError) Unwrap() error { return e.Err }
