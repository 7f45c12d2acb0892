package speech

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// entryState tracks the lifecycle of a prefetch cache entry.
type entryState int

const (
	entryPending entryState = iota
	entryReady
	entryDiscarded
)

// cacheEntry holds the synthesis state for one segment index. At most one
// entry exists per index per session.
type cacheEntry struct {
	index  int
	state  entryState
	result *SynthesisResult
}

// PrefetchCache is an index-keyed store of synthesized audio owned by a
// single session. Requests are issued asynchronously and tagged with the
// owning session generation; completions for a superseded session or a
// discarded entry are released and dropped silently, since cancellation is
// not a failure. Prefetch failures are logged and absorbed: the sequencer
// falls back to a synchronous fetch when it reaches the segment.
type PrefetchCache struct {
	mu      sync.Mutex
	entries map[int]*cacheEntry

	synth      Synthesizer
	voice      string
	generation uint64
	current    *atomic.Uint64
}

// newPrefetchCache creates a cache bound to one session generation.
// current points at the controller's generation counter so completions can
// detect that their session has been superseded.
func newPrefetchCache(synth Synthesizer, voice string, generation uint64, current *atomic.Uint64) *PrefetchCache {
	return &PrefetchCache{
		entries:    make(map[int]*cacheEntry),
		synth:      synth,
		voice:      voice,
		generation: generation,
		current:    current,
	}
}

// Request issues an asynchronous synthesis call for the segment unless an
// entry for its index already exists. It never blocks on synthesis.
func (c *PrefetchCache) Request(ctx context.Context, seg Segment) {
	c.mu.Lock()
	if _, exists := c.entries[seg.Index]; exists {
		c.mu.Unlock()
		return
	}
	e := &cacheEntry{index: seg.Index, state: entryPending}
	c.entries[seg.Index] = e
	c.mu.Unlock()

	log.Debug("prefetch requested", "index", seg.Index, "generation", c.generation)

	go func() {
		res, err := c.synth.Synthesize(ctx, seg.Text, c.voice)

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.current.Load() != c.generation || e.state == entryDiscarded {
			// Stale or cancelled; release the result without a sound.
			return
		}
		if err != nil {
			log.Debug("prefetch failed, will fetch on demand", "index", seg.Index, "err", err)
			delete(c.entries, seg.Index)
			return
		}
		e.state = entryReady
		e.result = res
	}()
}

// Take returns and removes a Ready entry's result. ok is false when no
// entry exists or the entry is still pending; the caller must then perform
// a blocking fetch of its own.
func (c *PrefetchCache) Take(index int) (res *SynthesisResult, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[index]
	if !exists || e.state != entryReady {
		return nil, false
	}
	delete(c.entries, index)
	return e.result, true
}

// DiscardThrough marks entries for already-played indices (<= index) as
// discarded and releases their payloads.
func (c *PrefetchCache) DiscardThrough(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if i <= index {
			e.state = entryDiscarded
			e.result = nil
			delete(c.entries, i)
		}
	}
}

// DiscardAll marks every entry discarded, releases Ready payloads and
// leaves the cache empty. In-flight completions observe the discarded
// state through their entry pointer and drop their results.
func (c *PrefetchCache) DiscardAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		e.state = entryDiscarded
		e.result = nil
	}
	c.entries = make(map[int]*cacheEntry)
}

// Len returns the number of live entries.
func (c *PrefetchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
