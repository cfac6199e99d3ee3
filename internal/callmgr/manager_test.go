package callmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aicallswitch/internal/logging"
	"aicallswitch/internal/scenario"
)

// stubDeps satisfies scenario.Deps with no-op side effects, enough to drive
// the outbound (server-originated) transition MakeCall exercises in tests.
type stubDeps struct{}

func (stubDeps) AcceptRequest(req *sip.Request) error                             { return nil }
func (stubDeps) SendSessionProgress(req *sip.Request) error                       { return nil }
func (stubDeps) CreateOffer() (*webrtc.SessionDescription, error)                 { return &webrtc.SessionDescription{}, nil }
func (stubDeps) SetRemoteDescription(sdp *webrtc.SessionDescription) error        { return nil }
func (stubDeps) PushOfferToCallee(callID string, offer *webrtc.SessionDescription) error {
	return nil
}
func (stubDeps) AcquireClient(serverOnly bool) error                              { return nil }
func (stubDeps) AnswerSDP(callID string, answer *webrtc.SessionDescription) error  { return nil }
func (stubDeps) SendInvite(callID string, offNet bool) error                      { return nil }
func (stubDeps) InvokeOrchestrator(callID string) error                           { return nil }

type fakeRingback struct {
	mu      sync.Mutex
	started map[string]bool
}

func newFakeRingback() *fakeRingback { return &fakeRingback{started: map[string]bool{}} }
func (f *fakeRingback) Start(callID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started[callID] = true
}
func (f *fakeRingback) Stop(callID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started[callID] = false
}
func (f *fakeRingback) isStarted(callID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started[callID]
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(userID, event string, payload map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, userID+":"+event)
	return nil
}

func (f *fakeNotifier) has(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

type fakeHangupDeps struct {
	mu       sync.Mutex
	hangups  []string
	cancels  []string
	shutdown []string
	ice      []string
}

func (f *fakeHangupDeps) HangupParty(userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangups = append(f.hangups, userID)
	return nil
}
func (f *fakeHangupDeps) CancelParty(userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, userID)
	return nil
}
func (f *fakeHangupDeps) ShutdownClient(callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = append(f.shutdown, callID)
	return nil
}
func (f *fakeHangupDeps) AddICECandidate(userID, candidate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ice = append(f.ice, userID+":"+candidate)
	return nil
}

// stuckHangupDeps never returns from HangupParty, simulating a client handle
// that has wedged; used to exercise Hangup's force-terminate timeout path.
type stuckHangupDeps struct {
	fakeHangupDeps
	block chan struct{}
}

func newStuckHangupDeps() *stuckHangupDeps {
	return &stuckHangupDeps{block: make(chan struct{})}
}

func (f *stuckHangupDeps) HangupParty(userID string) error {
	<-f.block
	return f.fakeHangupDeps.HangupParty(userID)
}

func testManager(t *testing.T) (*Manager, *fakeRingback, *fakeNotifier, *fakeHangupDeps) {
	t.Helper()
	rb := newFakeRingback()
	notifier := &fakeNotifier{}
	hd := &fakeHangupDeps{}
	m := New(Config{
		CleanupInterval:      20 * time.Millisecond,
		IdleContextTTL:       60 * time.Millisecond,
		SecureContextTimeout: 200 * time.Millisecond,
		HangupTimeout:        time.Second,
	}, rb, notifier, hd, logging.NewNop())
	t.Cleanup(m.Stop)
	return m, rb, notifier, hd
}

func TestManager_MakeCallRegistersContext(t *testing.T) {
	m, _, _, _ := testManager(t)
	topo := scenario.Topology{CallerIsServer: true}
	cc, sc, err := m.MakeCall(context.Background(), "mobile-user", "ai-agent", nil, topo, stubDeps{})
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.True(t, sc.InviteSent)
	got, ok := m.Get(cc.CallID)
	require.True(t, ok)
	assert.Equal(t, "ai-agent", got.Caller.UserID)
	assert.Equal(t, "mobile-user", got.Callee.UserID)
}

func TestManager_OnCallRingingStartsRingbackOnlyWhenRTPKnown(t *testing.T) {
	m, rb, _, _ := testManager(t)
	topo := scenario.Topology{CallerIsServer: true}
	cc, _, err := m.MakeCall(context.Background(), "mobile-user", "ai-agent", nil, topo, stubDeps{})
	require.NoError(t, err)

	m.OnCallRinging(cc.CallID, false)
	assert.False(t, rb.isStarted(cc.CallID))

	m.OnCallRinging(cc.CallID, true)
	assert.True(t, rb.isStarted(cc.CallID))
}

func TestManager_AnswerTimesOutWithoutSecureMedia(t *testing.T) {
	m, rb, notifier, _ := testManager(t)
	topo := scenario.Topology{CallerIsServer: true}
	cc, _, err := m.MakeCall(context.Background(), "mobile-user", "ai-agent", nil, topo, stubDeps{})
	require.NoError(t, err)
	m.OnCallRinging(cc.CallID, true)

	err = m.Answer(context.Background(), cc.CallID, &webrtc.SessionDescription{})
	assert.ErrorIs(t, err, ErrSecureMediaTimeout)
	assert.False(t, rb.isStarted(cc.CallID))
	assert.Empty(t, notifier.events)
}

func TestManager_AnswerSucceedsOnceSecureMediaReady(t *testing.T) {
	m, _, notifier, _ := testManager(t)
	topo := scenario.Topology{CallerIsServer: true}
	cc, _, err := m.MakeCall(context.Background(), "mobile-user", "ai-agent", nil, topo, stubDeps{})
	require.NoError(t, err)

	cc.MarkSecureMediaReady()
	err = m.Answer(context.Background(), cc.CallID, &webrtc.SessionDescription{})
	require.NoError(t, err)
	assert.True(t, notifier.has("ai-agent:answered"))
}

func TestManager_HangupNotifiesBothPartiesAndShutsDownClient(t *testing.T) {
	m, _, notifier, hd := testManager(t)
	topo := scenario.Topology{CallerIsServer: true}
	cc, _, err := m.MakeCall(context.Background(), "mobile-user", "ai-agent", nil, topo, stubDeps{})
	require.NoError(t, err)

	err = m.Hangup(cc.CallID, "ai-agent")
	require.NoError(t, err)
	assert.Contains(t, hd.hangups, "ai-agent")
	assert.Contains(t, hd.cancels, "mobile-user")
	assert.Contains(t, hd.shutdown, cc.CallID)
	assert.True(t, notifier.has("ai-agent:callEnded"))
	assert.True(t, notifier.has("mobile-user:callEnded"))
}

func TestManager_HangupForceTerminatesOnTimeout(t *testing.T) {
	rb := newFakeRingback()
	notifier := &fakeNotifier{}
	hd := newStuckHangupDeps()
	m := New(Config{
		CleanupInterval:      20 * time.Millisecond,
		IdleContextTTL:       60 * time.Millisecond,
		SecureContextTimeout: 200 * time.Millisecond,
		HangupTimeout:        30 * time.Millisecond,
	}, rb, notifier, hd, logging.NewNop())
	t.Cleanup(func() {
		close(hd.block)
		m.Stop()
	})

	topo := scenario.Topology{CallerIsServer: true}
	cc, _, err := m.MakeCall(context.Background(), "mobile-user", "ai-agent", nil, topo, stubDeps{})
	require.NoError(t, err)

	err = m.Hangup(cc.CallID, "ai-agent")
	assert.ErrorIs(t, err, ErrHangupTimeout)
	assert.True(t, notifier.has("ai-agent:hangupFailed"))
	assert.True(t, notifier.has("mobile-user:hangupFailed"))

	got, ok := m.Get(cc.CallID)
	require.True(t, ok)
	assert.Equal(t, StatusEnded, got.Status)
}

func TestManager_AddICECandidateRejectsNonParty(t *testing.T) {
	m, _, _, _ := testManager(t)
	topo := scenario.Topology{CallerIsServer: true}
	cc, _, err := m.MakeCall(context.Background(), "mobile-user", "ai-agent", nil, topo, stubDeps{})
	require.NoError(t, err)

	err = m.AddICECandidate(cc.CallID, "someone-else", "candidate-1")
	assert.ErrorIs(t, err, ErrNotOwner)

	err = m.AddICECandidate(cc.CallID, "ai-agent", "candidate-1")
	assert.NoError(t, err)
}

func TestManager_CleanupSweepReapsMissingCallee(t *testing.T) {
	m, _, _, _ := testManager(t)
	topo := scenario.Topology{CallerIsServer: true}
	cc, _, err := m.MakeCall(context.Background(), "", "ai-agent", nil, topo, stubDeps{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := m.Get(cc.CallID)
		return !ok
	}, time.Second, 10*time.Millisecond)
}
