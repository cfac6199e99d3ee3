package callmgr

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"aicallswitch/internal/scenario"
)

// Status is a CallContext's lifecycle state.
type Status string

const (
	StatusRinging  Status = "ringing"
	StatusAnswered Status = "answered"
	StatusEnded    Status = "ended"
)

// Party is one side of a call.
type Party struct {
	UserID       string
	LastActivity time.Time
}

// CallContext is one in-flight or recently-ended call. Individual fields
// are owned exclusively by the managing task; the mutex only protects
// against the cleanup sweep reading state concurrently with updates.
type CallContext struct {
	mu sync.Mutex

	CallID   string
	Topology scenario.Topology
	Variant  scenario.Variant

	Caller    Party
	Callee    Party
	HasCallee bool

	Status       Status
	CreatedAt    time.Time
	RingbackOn   bool
	Offer        *webrtc.SessionDescription
	Answer       *webrtc.SessionDescription

	secureReady chan struct{}
	secureOnce  sync.Once
}

func newCallContext(callID string, topo scenario.Topology, variant scenario.Variant, caller string, now time.Time) *CallContext {
	return &CallContext{
		CallID:      callID,
		Topology:    topo,
		Variant:     variant,
		Caller:      Party{UserID: caller, LastActivity: now},
		Status:      StatusRinging,
		CreatedAt:   now,
		secureReady: make(chan struct{}),
	}
}

// MarkSecureMediaReady signals that the secure-media context (DTLS/SRTP
// handshake) has completed for this call. Idempotent.
func (c *CallContext) MarkSecureMediaReady() {
	c.secureOnce.Do(func() { close(c.secureReady) })
}

func (c *CallContext) touchCaller(now time.Time) {
	c.mu.Lock()
	c.Caller.LastActivity = now
	c.mu.Unlock()
}

func (c *CallContext) touchCallee(now time.Time) {
	c.mu.Lock()
	c.Callee.LastActivity = now
	c.mu.Unlock()
}

func (c *CallContext) setCallee(userID string, now time.Time) {
	c.mu.Lock()
	c.Callee = Party{UserID: userID, LastActivity: now}
	c.HasCallee = true
	c.mu.Unlock()
}

func (c *CallContext) ownerOf(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Caller.UserID == userID || c.Callee.UserID == userID
}

func (c *CallContext) bothIdleSince(now time.Time, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.Caller.LastActivity) > ttl && (!c.HasCallee || now.Sub(c.Callee.LastActivity) > ttl)
}

func (c *CallContext) missingCalleeSince(now time.Time, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.HasCallee && now.Sub(c.CreatedAt) > ttl
}
