package playout

import (
	"sync"
	"time"
)

// Gate is the half-duplex "should_send_audio" switch driven by uplink voice
// activity. A transition is only honored if at least debounce has elapsed
// since the last accepted toggle, independent of any hysteresis the voice
// detector itself applies.
type Gate struct {
	mu          sync.Mutex
	sendAudio   bool
	lastToggle  time.Time
	debounce    time.Duration
}

// NewGate creates an open gate (sendAudio=true) with the given debounce.
func NewGate(debounce time.Duration) *Gate {
	return &Gate{sendAudio: true, debounce: debounce}
}

// SetSpeaking reports that the remote party's VAD transitioned to speaking
// (closing the gate) or to silence (opening it), at time now. A transition
// within debounce of the last accepted one is dropped.
func (g *Gate) SetSpeaking(speaking bool, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	want := !speaking
	if want == g.sendAudio {
		return
	}
	if !g.lastToggle.IsZero() && now.Sub(g.lastToggle) < g.debounce {
		return
	}
	g.sendAudio = want
	g.lastToggle = now
}

// ShouldSendAudio reports the current gate state.
func (g *Gate) ShouldSendAudio() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sendAudio
}
