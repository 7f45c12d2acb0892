package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pocketreader/readaloud/internal/speech"
)

// Mock is a scriptable in-memory synthesizer. The returned audio is the
// input text itself, so tests can identify payloads by content. Delays
// and failures are keyed by text.
type Mock struct {
	mu        sync.Mutex
	delays    map[string]time.Duration
	failTimes map[string]int
	calls     map[string]int
	order     []string
	voice     string
}

// NewMock creates an empty mock synthesizer.
func NewMock() *Mock {
	return &Mock{
		delays:    make(map[string]time.Duration),
		failTimes: make(map[string]int),
		calls:     make(map[string]int),
	}
}

// Delay makes synthesis of the given text take d of wall time.
func (m *Mock) Delay(text string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[text] = d
}

// FailTimes makes the next n synthesis calls for the text fail before
// succeeding.
func (m *Mock) FailTimes(text string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTimes[text] = n
}

// Synthesize implements speech.Synthesizer.
func (m *Mock) Synthesize(ctx context.Context, text, voice string) (*speech.SynthesisResult, error) {
	m.mu.Lock()
	m.calls[text]++
	m.order = append(m.order, text)
	m.voice = voice
	delay := m.delays[text]
	fail := false
	if m.failTimes[text] > 0 {
		m.failTimes[text]--
		fail = true
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail {
		return nil, fmt.Errorf("scripted failure for %q", text)
	}
	if text == "" {
		return nil, errors.New("empty text")
	}

	return &speech.SynthesisResult{Audio: []byte(text), MimeType: "audio/wav"}, nil
}

// Calls returns how many times the text was synthesized.
func (m *Mock) Calls(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[text]
}

// TotalCalls returns the total number of synthesis calls.
func (m *Mock) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Order returns the texts in the order they were requested.
func (m *Mock) Order() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// LastVoice returns the voice of the most recent call.
func (m *Mock) LastVoice() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voice
}

var _ speech.Synthesizer = (*Mock)(nil)
