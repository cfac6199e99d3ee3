// Package callmgr owns every in-flight CallContext for the switch: creation,
// answer, hangup, ICE-candidate routing, ringback, and the idle-context
// cleanup sweep. Persistence is explicitly out of scope; the map is the
// only store.
package callmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"aicallswitch/internal/logging"
	"aicallswitch/internal/scenario"
)

var (
	// ErrNotFound is returned for any operation on an unknown call_id.
	ErrNotFound = errors.New("callmgr: call not found")
	// ErrNotOwner is returned when add_ice_candidate names a user_id that
	// is not a party to the given call.
	ErrNotOwner = errors.New("callmgr: user is not a party to this call")
	// ErrSecureMediaTimeout is returned by Answer when the secure-media
	// context does not become ready within its timeout.
	ErrSecureMediaTimeout = errors.New("callmgr: secure media context timed out")
	// ErrHangupTimeout is returned by Hangup when the teardown calls to
	// HangupDeps do not complete within Config.HangupTimeout: the force-
	// terminate path is taken and both parties are notified hangupFailed.
	ErrHangupTimeout = errors.New("callmgr: hangup force-terminate timeout")
)

// SignallingNotifier delivers a localized status notification to one user.
// Satisfied by internal/signalling.
type SignallingNotifier interface {
	Notify(userID, event string, payload map[string]string) error
}

// HangupDeps are the side-effecting client operations hangup/answer drive.
// Kept separate from scenario.Deps because they act on an established call's
// client handles rather than on SIP/SDP negotiation.
type HangupDeps interface {
	HangupParty(userID string) error
	CancelParty(userID string) error
	ShutdownClient(callID string) error
	AddICECandidate(userID, candidate string) error
}

// Config carries the manager's tunable timeouts, all named in the switch's
// configuration surface.
type Config struct {
	CleanupInterval     time.Duration
	IdleContextTTL      time.Duration
	SecureContextTimeout time.Duration
	HangupTimeout       time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		CleanupInterval:      5 * time.Second,
		IdleContextTTL:       30 * time.Second,
		SecureContextTimeout: 10 * time.Second,
		HangupTimeout:        10 * time.Second,
	}
}

// Manager owns the call_id -> CallContext map plus the cleanup sweep.
type Manager struct {
	cfg        Config
	ringback   RingbackController
	signalling SignallingNotifier
	deps       HangupDeps
	logger     logging.Logger

	mu       sync.RWMutex
	contexts map[string]*CallContext

	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  chan struct{}
}

// New builds a Manager. ringback and signalling may be nil, in which case
// ringback becomes a no-op and notifications are silently dropped (useful
// in tests that don't exercise those side channels).
func New(cfg Config, ringback RingbackController, signalling SignallingNotifier, deps HangupDeps, logger logging.Logger) *Manager {
	if ringback == nil {
		ringback = noopRingback{}
	}
	m := &Manager{
		cfg:        cfg,
		ringback:   ringback,
		signalling: signalling,
		deps:       deps,
		logger:     logger,
		contexts:   make(map[string]*CallContext),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// MakeCall creates and registers a new outbound call context, picking the
// scenario handler for topo and running its outbound transition. It does
// not start ringback itself; OnCallRinging starts it once the RTP remote
// endpoint is known, since early media may arrive before or after this call
// returns.
func (m *Manager) MakeCall(ctx context.Context, destination, caller string, offer *webrtc.SessionDescription, topo scenario.Topology, sdeps scenario.Deps) (*CallContext, *scenario.Context, error) {
	variant, err := scenario.Resolve(topo)
	if err != nil {
		return nil, nil, fmt.Errorf("callmgr: make_call: %w", err)
	}

	now := time.Now()
	callID := "AI_Caller_" + uuid.New().String()
	cc := newCallContext(callID, topo, variant, caller, now)

	sc := &scenario.Context{CallID: callID, Topology: topo, Offer: offer}
	sc, err = scenario.Run(ctx, topo, "outbound", sc, sdeps)
	if err != nil {
		return nil, sc, fmt.Errorf("callmgr: make_call: scenario transition: %w", err)
	}
	cc.Offer = sc.Offer
	cc.Answer = sc.Answer
	if destination != "" {
		cc.setCallee(destination, now)
	}

	m.mu.Lock()
	m.contexts[callID] = cc
	m.mu.Unlock()

	return cc, sc, nil
}

// OnCallRinging starts ringback for callID if the RTP remote endpoint of
// the caller leg is already known (early media is possible).
func (m *Manager) OnCallRinging(callID string, rtpRemoteKnown bool) {
	cc, ok := m.get(callID)
	if !ok || !rtpRemoteKnown {
		return
	}
	cc.mu.Lock()
	cc.RingbackOn = true
	cc.mu.Unlock()
	m.ringback.Start(callID)
}

// OnCallEnded performs the ringback/hangup cleanup wiring make_call promised:
// it stops ringback (idempotent if never started) and marks the context
// ended. The context stays in the map until the cleanup sweep removes it
// under its idle and missing-callee rules; the ended status does not
// shorten that wait.
func (m *Manager) OnCallEnded(callID string) {
	cc, ok := m.get(callID)
	if !ok {
		return
	}
	m.ringback.Stop(callID)
	cc.mu.Lock()
	cc.Status = StatusEnded
	cc.mu.Unlock()
}

// Answer stops ringback, records the remote description, waits up to the
// configured secure-media timeout, then marks the call answered and
// notifies the caller.
func (m *Manager) Answer(ctx context.Context, callID string, answer *webrtc.SessionDescription) error {
	cc, ok := m.get(callID)
	if !ok {
		return ErrNotFound
	}

	m.ringback.Stop(callID)
	cc.mu.Lock()
	cc.Answer = answer
	cc.mu.Unlock()

	timer := time.NewTimer(m.cfg.SecureContextTimeout)
	defer timer.Stop()
	select {
	case <-cc.secureReady:
	case <-timer.C:
		return ErrSecureMediaTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	cc.mu.Lock()
	cc.Status = StatusAnswered
	cc.mu.Unlock()

	if m.signalling != nil {
		if err := m.signalling.Notify(cc.Caller.UserID, "answered", map[string]string{"call_id": callID}); err != nil {
			m.logger.Warnw("callmgr: failed to notify caller of answer", "call_id", callID, "error", err)
		}
	}
	return nil
}

// Hangup tears down callID. The initiating party receives a `hangup` on
// its client handle, the other party a `cancel`; both clients are then
// shut down and both sides are notified. Kept best-effort past the first
// error so teardown never half-completes on one party's failure. If the
// teardown calls have not returned within Config.HangupTimeout, Hangup takes
// the force-terminate path: it stops waiting, marks the call ended anyway,
// and notifies both parties hangupFailed rather than blocking indefinitely
// on a stuck client handle.
func (m *Manager) Hangup(callID, initiatingUser string) error {
	cc, ok := m.get(callID)
	if !ok {
		return ErrNotFound
	}

	teardownDone := make(chan []error, 1)
	go func() {
		var errs []error
		for _, userID := range m.parties(cc) {
			if userID == "" {
				continue
			}
			var err error
			if userID == initiatingUser {
				err = m.deps.HangupParty(userID)
			} else {
				err = m.deps.CancelParty(userID)
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		if err := m.deps.ShutdownClient(callID); err != nil {
			errs = append(errs, err)
		}
		teardownDone <- errs
	}()

	var errs []error
	timer := time.NewTimer(m.cfg.HangupTimeout)
	defer timer.Stop()
	select {
	case errs = <-teardownDone:
	case <-timer.C:
		m.logger.Warnw("callmgr: hangup force-terminated after timeout", "call_id", callID, "timeout", m.cfg.HangupTimeout)
		errs = append(errs, ErrHangupTimeout)
	}

	cc.mu.Lock()
	cc.Status = StatusEnded
	cc.mu.Unlock()
	m.ringback.Stop(callID)

	if m.signalling != nil {
		for _, userID := range m.parties(cc) {
			if userID == "" {
				continue
			}
			status := "callEnded"
			if len(errs) > 0 {
				status = "hangupFailed"
			}
			_ = m.signalling.Notify(userID, status, map[string]string{"call_id": callID})
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("callmgr: hangup: %d error(s), first: %w", len(errs), errs[0])
	}
	return nil
}

func (m *Manager) parties(cc *CallContext) []string {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return []string{cc.Caller.UserID, cc.Callee.UserID}
}

// AddICECandidate routes candidate to the deps layer after confirming
// userID is a party to callID.
func (m *Manager) AddICECandidate(callID, userID, candidate string) error {
	cc, ok := m.get(callID)
	if !ok {
		return ErrNotFound
	}
	if !cc.ownerOf(userID) {
		return ErrNotOwner
	}
	now := time.Now()
	if cc.Caller.UserID == userID {
		cc.touchCaller(now)
	} else {
		cc.touchCallee(now)
	}
	return m.deps.AddICECandidate(userID, candidate)
}

// Get returns the context for callID, if it still exists.
func (m *Manager) Get(callID string) (*CallContext, bool) {
	return m.get(callID)
}

func (m *Manager) get(callID string) (*CallContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cc, ok := m.contexts[callID]
	return cc, ok
}

// Stop halts the cleanup sweep. Idempotent.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.stopped
	})
}

func (m *Manager) cleanupLoop() {
	defer close(m.stopped)
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

// sweep drops contexts whose both parties have been idle past the TTL
// since their last activity, and those still missing a callee past the
// same TTL since creation.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cc := range m.contexts {
		if cc.missingCalleeSince(now, m.cfg.IdleContextTTL) || cc.bothIdleSince(now, m.cfg.IdleContextTTL) {
			delete(m.contexts, id)
			m.ringback.Stop(id)
			m.logger.Infow("callmgr: reaped idle call context", "call_id", id)
		}
	}
}
