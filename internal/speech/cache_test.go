package speech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// blockingSynth completes synthesis only when released.
type blockingSynth struct {
	mu      sync.Mutex
	waiters map[string]chan struct{}
	calls   map[string]int
	fail    map[string]error
}

func newBlockingSynth() *blockingSynth {
	return &blockingSynth{
		waiters: make(map[string]chan struct{}),
		calls:   make(map[string]int),
		fail:    make(map[string]error),
	}
}

func (b *blockingSynth) hold(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiters[text] = make(chan struct{})
}

func (b *blockingSynth) release(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.waiters[text]; ok {
		close(ch)
		delete(b.waiters, text)
	}
}

func (b *blockingSynth) Synthesize(ctx context.Context, text, voice string) (*SynthesisResult, error) {
	b.mu.Lock()
	b.calls[text]++
	ch := b.waiters[text]
	err := b.fail[text]
	b.mu.Unlock()

	if ch != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
	if err != nil {
		return nil, err
	}
	return &SynthesisResult{Audio: []byte(text), MimeType: "audio/wav"}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCacheTakeReadyEntry(t *testing.T) {
	var current atomic.Uint64
	current.Store(1)
	c := newPrefetchCache(newBlockingSynth(), "alba", 1, &current)

	c.Request(context.Background(), Segment{Index: 3, Text: "three"})
	waitFor(t, func() bool { _, ok := c.Take(3); return ok })

	// Taken entries are removed.
	if _, ok := c.Take(3); ok {
		t.Error("entry should be gone after Take")
	}
}

func TestCacheTakePendingEntry(t *testing.T) {
	var current atomic.Uint64
	current.Store(1)
	bs := newBlockingSynth()
	bs.hold("slow")
	c := newPrefetchCache(bs, "alba", 1, &current)

	c.Request(context.Background(), Segment{Index: 0, Text: "slow"})
	if _, ok := c.Take(0); ok {
		t.Error("pending entry must not be taken")
	}
	bs.release("slow")
}

func TestCacheRequestIsIdempotent(t *testing.T) {
	var current atomic.Uint64
	current.Store(1)
	bs := newBlockingSynth()
	c := newPrefetchCache(bs, "alba", 1, &current)

	seg := Segment{Index: 2, Text: "dup"}
	c.Request(context.Background(), seg)
	c.Request(context.Background(), seg)
	waitFor(t, func() bool { res, ok := c.Take(2); return ok && string(res.Audio) == "dup" })

	bs.mu.Lock()
	calls := bs.calls["dup"]
	bs.mu.Unlock()
	if calls != 1 {
		t.Errorf("synthesis calls = %d, want 1", calls)
	}
}

func TestCacheStaleCompletionDropped(t *testing.T) {
	var current atomic.Uint64
	current.Store(1)
	bs := newBlockingSynth()
	bs.hold("late")
	c := newPrefetchCache(bs, "alba", 1, &current)

	c.Request(context.Background(), Segment{Index: 0, Text: "late"})

	// A new session supersedes this cache before synthesis completes.
	current.Store(2)
	bs.release("late")

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Take(0); ok {
		t.Error("stale completion must not become a ready entry")
	}
}

func TestCacheDiscardAll(t *testing.T) {
	var current atomic.Uint64
	current.Store(1)
	bs := newBlockingSynth()
	bs.hold("inflight")
	c := newPrefetchCache(bs, "alba", 1, &current)

	c.Request(context.Background(), Segment{Index: 0, Text: "done"})
	c.Request(context.Background(), Segment{Index: 1, Text: "inflight"})
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		e := c.entries[0]
		return e != nil && e.state == entryReady
	})

	c.DiscardAll()
	if c.Len() != 0 {
		t.Errorf("cache length = %d after DiscardAll, want 0", c.Len())
	}

	bs.release("inflight")
	time.Sleep(20 * time.Millisecond)
	if c.Len() != 0 {
		t.Error("discarded in-flight completion repopulated the cache")
	}
}

func TestCacheDiscardThrough(t *testing.T) {
	var current atomic.Uint64
	current.Store(1)
	c := newPrefetchCache(newBlockingSynth(), "alba", 1, &current)

	for i := 0; i < 4; i++ {
		c.Request(context.Background(), Segment{Index: i, Text: "seg"})
	}
	waitFor(t, func() bool { return c.Len() == 4 })
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, e := range c.entries {
			if e.state != entryReady {
				return false
			}
		}
		return true
	})

	c.DiscardThrough(1)
	if c.Len() != 2 {
		t.Errorf("cache length = %d, want 2", c.Len())
	}
	if _, ok := c.Take(2); !ok {
		t.Error("entry above the watermark should survive")
	}
}

func TestCacheFailedPrefetchLeavesNoEntry(t *testing.T) {
	var current atomic.Uint64
	current.Store(1)
	bs := newBlockingSynth()
	bs.fail["broken"] = errors.New("synthesis down")
	c := newPrefetchCache(bs, "alba", 1, &current)

	c.Request(context.Background(), Segment{Index: 0, Text: "broken"})
	waitFor(t, func() bool { return c.Len() == 0 })

	// The slot is free for a fresh on-demand request.
	bs.mu.Lock()
	delete(bs.fail, "broken")
	bs.mu.Unlock()
	c.Request(context.Background(), Segment{Index: 0, Text: "broken"})
	waitFor(t, func() bool { _, ok := c.Take(0); return ok })
}
