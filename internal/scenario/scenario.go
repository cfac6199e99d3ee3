// Package scenario selects and runs one of the call-scenario topologies: a
// pure transition function that maps an inbound SIP request or an outbound
// dial request, plus the current call context, to an updated call context.
package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/emiago/sipgo/sip"
	"github.com/pion/webrtc/v4"
)

// ErrNoHandler is returned when a topology does not map to any known variant.
var ErrNoHandler = errors.New("scenario: no handler for this topology")

// Variant names one of the seven call-scenario topologies.
type Variant string

const (
	WebToWeb       Variant = "web_to_web"
	WebToMobile    Variant = "web_to_mobile"
	MobileToWeb    Variant = "mobile_to_web"
	ServerToWeb    Variant = "server_to_web"
	WebToServer    Variant = "web_to_server"
	ServerToMobile Variant = "server_to_mobile"
	MobileToServer Variant = "mobile_to_server"
)

// Topology is the routing input captured at call-creation time. CalleeIsServer
// disambiguates variants that the three-boolean original table under-
// determines (WebToMobile vs. WebToServer both start from a web caller and
// a non-web-labeled callee; ServerToMobile vs. ServerToWeb both start from a
// server caller).
type Topology struct {
	CallerIsWeb    bool
	CalleeIsWeb    bool
	CallerIsServer bool
	CalleeIsServer bool
}

// Resolve maps a Topology to its Variant, or ErrNoHandler if no known
// variant matches (e.g. a caller flagged both web and server).
func Resolve(t Topology) (Variant, error) {
	switch {
	case t.CallerIsServer && t.CalleeIsServer:
		return "", fmt.Errorf("%w: server cannot call itself", ErrNoHandler)
	case t.CallerIsWeb && t.CallerIsServer:
		return "", fmt.Errorf("%w: caller cannot be both web and server", ErrNoHandler)
	case t.CalleeIsWeb && t.CalleeIsServer:
		return "", fmt.Errorf("%w: callee cannot be both web and server", ErrNoHandler)
	case t.CallerIsWeb && t.CalleeIsWeb:
		return WebToWeb, nil
	case t.CallerIsWeb && t.CalleeIsServer:
		return WebToServer, nil
	case t.CallerIsWeb:
		return WebToMobile, nil
	case t.CalleeIsWeb && t.CallerIsServer:
		return ServerToWeb, nil
	case t.CalleeIsWeb:
		return MobileToWeb, nil
	case t.CalleeIsServer:
		return MobileToServer, nil
	case t.CallerIsServer:
		return ServerToMobile, nil
	default:
		return "", ErrNoHandler
	}
}

// Context is the pure-data call context a transition function reads,
// updates in place and returns. It is intentionally narrow: orchestration
// side effects (SIP signalling sends, SDP negotiation) are invoked through
// the Deps a caller supplies, not embedded here.
type Context struct {
	CallID      string
	Topology    Topology
	SIPRequest  *sip.Request
	Offer       *webrtc.SessionDescription
	Answer      *webrtc.SessionDescription
	RemoteDescr *webrtc.SessionDescription
	EarlyMedia  bool
	InviteSent  bool
	Orchestrated bool
}

// Deps are the side-effecting operations a transition function invokes. A
// Deps method returning an error aborts the transition; the Context is
// still returned in the state it reached.
type Deps interface {
	AcceptRequest(req *sip.Request) error
	SendSessionProgress(req *sip.Request) error
	CreateOffer() (*webrtc.SessionDescription, error)
	SetRemoteDescription(sdp *webrtc.SessionDescription) error
	PushOfferToCallee(callID string, offer *webrtc.SessionDescription) error
	AcquireClient(serverOnly bool) error
	AnswerSDP(callID string, answer *webrtc.SessionDescription) error
	SendInvite(callID string, offNet bool) error
	InvokeOrchestrator(callID string) error
}

// TransitionFunc is a pure-in-spirit transition: given ctx and cc (the
// current call context), it performs its side effects through deps and
// returns the resulting call context.
type TransitionFunc func(ctx context.Context, cc *Context, deps Deps) (*Context, error)

// Handlers bundles the inbound and outbound transition for one variant. A
// nil field means that direction is undefined for the variant (a no-op).
type Handlers struct {
	Inbound  TransitionFunc
	Outbound TransitionFunc
}

// ByVariant is the fixed registry of the seven call-scenario topologies.
var ByVariant = map[Variant]Handlers{
	WebToWeb: {
		Inbound:  webToWebInbound,
		Outbound: webToWebOutbound,
	},
	WebToMobile: {
		Outbound: webToWebOutbound, // same shape; destination happens to be off-net
	},
	MobileToWeb: {
		Inbound: mobileToWebInbound,
	},
	ServerToWeb: {
		Inbound:  serverToWebInbound,
		Outbound: serverOutboundDirect,
	},
	WebToServer: {
		Inbound:  webToServerInbound,
		Outbound: webToServerInbound, // mirrors the inbound path; rare in practice
	},
	ServerToMobile: {
		Outbound: serverOutboundDirect,
	},
	MobileToServer: {
		Inbound: mobileToServerInbound,
	},
}

// Run resolves t's variant and applies dir ("inbound" or "outbound") to cc.
func Run(ctx context.Context, t Topology, dir string, cc *Context, deps Deps) (*Context, error) {
	variant, err := Resolve(t)
	if err != nil {
		return cc, err
	}
	handlers, ok := ByVariant[variant]
	if !ok {
		return cc, fmt.Errorf("%w: variant %s", ErrNoHandler, variant)
	}
	var fn TransitionFunc
	switch dir {
	case "inbound":
		fn = handlers.Inbound
	case "outbound":
		fn = handlers.Outbound
	default:
		return cc, fmt.Errorf("scenario: unknown direction %q", dir)
	}
	if fn == nil {
		return cc, nil
	}
	return fn(ctx, cc, deps)
}

func webToWebInbound(ctx context.Context, cc *Context, deps Deps) (*Context, error) {
	if err := deps.AcceptRequest(cc.SIPRequest); err != nil {
		return cc, err
	}
	if err := deps.SendSessionProgress(cc.SIPRequest); err != nil {
		return cc, err
	}
	cc.EarlyMedia = true
	offer, err := deps.CreateOffer()
	if err != nil {
		return cc, err
	}
	cc.Offer = offer
	if err := deps.PushOfferToCallee(cc.CallID, offer); err != nil {
		return cc, err
	}
	return cc, nil
}

func webToWebOutbound(ctx context.Context, cc *Context, deps Deps) (*Context, error) {
	if err := acceptableOffer(cc.Offer); err != nil {
		return cc, err
	}
	if err := deps.AcquireClient(false); err != nil {
		return cc, err
	}
	if err := deps.SetRemoteDescription(cc.Offer); err != nil {
		return cc, err
	}
	answer, err := deps.CreateOffer()
	if err != nil {
		return cc, err
	}
	cc.Answer = answer
	if err := deps.AnswerSDP(cc.CallID, answer); err != nil {
		return cc, err
	}
	offNet := !cc.Topology.CalleeIsWeb
	if err := deps.SendInvite(cc.CallID, offNet); err != nil {
		return cc, err
	}
	cc.InviteSent = true
	return cc, nil
}

func mobileToWebInbound(ctx context.Context, cc *Context, deps Deps) (*Context, error) {
	if err := acceptableOffer(cc.RemoteDescr); err != nil {
		return cc, err
	}
	if err := deps.SetRemoteDescription(cc.RemoteDescr); err != nil {
		return cc, err
	}
	if err := deps.SendSessionProgress(cc.SIPRequest); err != nil {
		return cc, err
	}
	cc.EarlyMedia = true
	offer, err := deps.CreateOffer()
	if err != nil {
		return cc, err
	}
	cc.Offer = offer
	return cc, nil
}

func serverToWebInbound(ctx context.Context, cc *Context, deps Deps) (*Context, error) {
	if err := deps.AcceptRequest(cc.SIPRequest); err != nil {
		return cc, err
	}
	offer, err := deps.CreateOffer()
	if err != nil {
		return cc, err
	}
	cc.Offer = offer
	if err := deps.PushOfferToCallee(cc.CallID, offer); err != nil {
		return cc, err
	}
	return cc, nil
}

func serverOutboundDirect(ctx context.Context, cc *Context, deps Deps) (*Context, error) {
	if err := deps.AcquireClient(true); err != nil {
		return cc, err
	}
	offNet := !cc.Topology.CalleeIsWeb
	if err := deps.SendInvite(cc.CallID, offNet); err != nil {
		return cc, err
	}
	cc.InviteSent = true
	return cc, nil
}

func webToServerInbound(ctx context.Context, cc *Context, deps Deps) (*Context, error) {
	if err := acceptableOffer(cc.Offer); err != nil {
		return cc, err
	}
	if err := deps.AcquireClient(true); err != nil {
		return cc, err
	}
	if err := deps.SetRemoteDescription(cc.Offer); err != nil {
		return cc, err
	}
	answer, err := deps.CreateOffer()
	if err != nil {
		return cc, err
	}
	cc.Answer = answer
	if err := deps.InvokeOrchestrator(cc.CallID); err != nil {
		return cc, err
	}
	cc.Orchestrated = true
	return cc, nil
}

func mobileToServerInbound(ctx context.Context, cc *Context, deps Deps) (*Context, error) {
	if err := acceptableOffer(cc.RemoteDescr); err != nil {
		return cc, err
	}
	if err := deps.AcquireClient(true); err != nil {
		return cc, err
	}
	if err := deps.SetRemoteDescription(cc.RemoteDescr); err != nil {
		return cc, err
	}
	answer, err := deps.CreateOffer()
	if err != nil {
		return cc, err
	}
	cc.Answer = answer
	if err := deps.InvokeOrchestrator(cc.CallID); err != nil {
		return cc, err
	}
	cc.Orchestrated = true
	return cc, nil
}
