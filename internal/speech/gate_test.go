package speech

import "testing"

func TestGateConfirm(t *testing.T) {
	var g gestureGate
	decision := g.park(&SynthesisResult{Audio: []byte("x")})

	if !g.waiting() {
		t.Error("gate should report a parked attempt")
	}
	if !g.confirm() {
		t.Fatal("confirm reported nothing parked")
	}
	if v, open := <-decision; !open || !v {
		t.Errorf("decision = %v open=%v, want true", v, open)
	}
	if g.waiting() {
		t.Error("gate should be empty after resolution")
	}
}

func TestGateDismiss(t *testing.T) {
	var g gestureGate
	decision := g.park(nil)

	if !g.dismiss() {
		t.Fatal("dismiss reported nothing parked")
	}
	if v, open := <-decision; !open || v {
		t.Errorf("decision = %v open=%v, want false", v, open)
	}
}

func TestGateResolveWithoutPark(t *testing.T) {
	var g gestureGate
	if g.confirm() || g.dismiss() {
		t.Error("resolving an empty gate should report false")
	}
}

func TestGateParkSupersedes(t *testing.T) {
	var g gestureGate
	first := g.park(nil)
	second := g.park(nil)

	// The first waiter sees a closed channel, not a decision.
	if _, open := <-first; open {
		t.Error("superseded attempt should observe a closed channel")
	}

	if !g.confirm() {
		t.Fatal("confirm reported nothing parked")
	}
	if v, open := <-second; !open || !v {
		t.Errorf("second decision = %v open=%v, want true", v, open)
	}
}

func TestGateClear(t *testing.T) {
	var g gestureGate
	decision := g.park(nil)
	g.clear()

	if _, open := <-decision; open {
		t.Error("cleared attempt should observe a closed channel")
	}
	if g.waiting() {
		t.Error("gate should be empty after clear")
	}
}
