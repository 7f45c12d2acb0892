package speech

import "sync"

// gestureGate parks a refused play attempt until the user confirms or
// dismisses the gesture prompt. At most one attempt is parked at a time; a
// newer refusal supersedes an unresolved one, because only the latest
// segment's play attempt is worth resuming.
type gestureGate struct {
	mu       sync.Mutex
	decision chan bool
	result   *SynthesisResult
}

// park registers a pending play attempt and returns the channel the
// sequencer waits on. true means confirmed, false means dismissed; a
// closed channel means the attempt was superseded.
func (g *gestureGate) park(res *SynthesisResult) <-chan bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.decision != nil {
		close(g.decision)
	}
	g.decision = make(chan bool, 1)
	g.result = res
	return g.decision
}

// confirm resolves the parked attempt positively. It reports whether an
// attempt was pending.
func (g *gestureGate) confirm() bool {
	return g.resolve(true)
}

// dismiss resolves the parked attempt negatively. It reports whether an
// attempt was pending.
func (g *gestureGate) dismiss() bool {
	return g.resolve(false)
}

func (g *gestureGate) resolve(ok bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.decision == nil {
		return false
	}
	g.decision <- ok
	g.decision = nil
	g.result = nil
	return true
}

// clear drops any parked attempt without resolving it. Used on session
// teardown; the waiting sequencer exits through its context instead.
func (g *gestureGate) clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.decision != nil {
		close(g.decision)
		g.decision = nil
	}
	g.result = nil
}

// waiting reports whether a play attempt is parked.
func (g *gestureGate) waiting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision != nil
}
