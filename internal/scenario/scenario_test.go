package scenario

import (
	"context"
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeps struct {
	calls []string
}

func (f *fakeDeps) AcceptRequest(req *sip.Request) error {
	f.calls = append(f.calls, "accept")
	return nil
}
func (f *fakeDeps) SendSessionProgress(req *sip.Request) error {
	f.calls = append(f.calls, "session_progress")
	return nil
}
func (f *fakeDeps) CreateOffer() (*webrtc.SessionDescription, error) {
	f.calls = append(f.calls, "create_offer")
	return &webrtc.SessionDescription{}, nil
}
func (f *fakeDeps) SetRemoteDescription(sdp *webrtc.SessionDescription) error {
	f.calls = append(f.calls, "set_remote")
	return nil
}
func (f *fakeDeps) PushOfferToCallee(callID string, offer *webrtc.SessionDescription) error {
	f.calls = append(f.calls, "push_offer")
	return nil
}
func (f *fakeDeps) AcquireClient(serverOnly bool) error {
	f.calls = append(f.calls, "acquire_client")
	return nil
}
func (f *fakeDeps) AnswerSDP(callID string, answer *webrtc.SessionDescription) error {
	f.calls = append(f.calls, "answer_sdp")
	return nil
}
func (f *fakeDeps) SendInvite(callID string, offNet bool) error {
	f.calls = append(f.calls, "send_invite")
	return nil
}
func (f *fakeDeps) InvokeOrchestrator(callID string) error {
	f.calls = append(f.calls, "invoke_orchestrator")
	return nil
}

func TestResolve_AllSevenVariants(t *testing.T) {
	cases := []struct {
		name string
		t    Topology
		want Variant
	}{
		{"web-web", Topology{CallerIsWeb: true, CalleeIsWeb: true}, WebToWeb},
		{"web-mobile", Topology{CallerIsWeb: true}, WebToMobile},
		{"mobile-web", Topology{CalleeIsWeb: true}, MobileToWeb},
		{"server-web", Topology{CallerIsServer: true, CalleeIsWeb: true}, ServerToWeb},
		{"web-server", Topology{CallerIsWeb: true, CalleeIsServer: true}, WebToServer},
		{"server-mobile", Topology{CallerIsServer: true}, ServerToMobile},
		{"mobile-server", Topology{CalleeIsServer: true}, MobileToServer},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Resolve(c.t)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestResolve_ContradictoryTopologyIsNoHandler(t *testing.T) {
	_, err := Resolve(Topology{CallerIsWeb: true, CallerIsServer: true})
	assert.ErrorIs(t, err, ErrNoHandler)

	_, err = Resolve(Topology{CallerIsServer: true, CalleeIsServer: true})
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestRun_WebToWebInboundThenOutbound(t *testing.T) {
	topo := Topology{CallerIsWeb: true, CalleeIsWeb: true}
	deps := &fakeDeps{}
	cc := &Context{CallID: "call-1", Topology: topo, SIPRequest: &sip.Request{}}

	cc, err := Run(context.Background(), topo, "inbound", cc, deps)
	require.NoError(t, err)
	assert.True(t, cc.EarlyMedia)
	require.NotNil(t, cc.Offer)
	assert.Equal(t, []string{"accept", "session_progress", "create_offer", "push_offer"}, deps.calls)

	deps.calls = nil
	cc, err = Run(context.Background(), topo, "outbound", cc, deps)
	require.NoError(t, err)
	assert.True(t, cc.InviteSent)
	assert.Equal(t, []string{"acquire_client", "set_remote", "create_offer", "answer_sdp", "send_invite"}, deps.calls)
}

func TestRun_WebToServerInvokesOrchestrator(t *testing.T) {
	topo := Topology{CallerIsWeb: true, CalleeIsServer: true}
	deps := &fakeDeps{}
	cc := &Context{CallID: "call-2", Topology: topo, Offer: &webrtc.SessionDescription{}}

	cc, err := Run(context.Background(), topo, "inbound", cc, deps)
	require.NoError(t, err)
	assert.True(t, cc.Orchestrated)
}

func TestRun_UndefinedDirectionIsNoop(t *testing.T) {
	topo := Topology{CallerIsWeb: true} // WebToMobile has no Inbound handler
	deps := &fakeDeps{}
	cc := &Context{CallID: "call-3", Topology: topo}

	out, err := Run(context.Background(), topo, "inbound", cc, deps)
	require.NoError(t, err)
	assert.Same(t, cc, out)
	assert.Empty(t, deps.calls)
}
