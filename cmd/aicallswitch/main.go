package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/emiago/sipgo/sip"
	"github.com/pion/webrtc/v4"

	"aicallswitch/internal/callmgr"
	"aicallswitch/internal/config"
	"aicallswitch/internal/logging"
	"aicallswitch/internal/scenario"
	"aicallswitch/internal/signalling"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger, err := logging.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	var dialDestination string
	if len(os.Args) > 2 {
		dialDestination = os.Args[2]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Errorw("config error", "error", err)
		os.Exit(1)
	}

	logger.Infow("starting ai call switch",
		"jitter_waterline", cfg.JitterWaterline,
		"resampler_quality", cfg.ResamplerQuality,
		"sip_bind_port", cfg.SIPBindPort,
		"sip_transport", cfg.SIPTransport,
	)

	transport := &logOnlyTransport{logger: logger}
	notifier := signalling.New(transport, signalling.DefaultRetryPolicy(), logger)

	sdeps := &loggingScenarioDeps{logger: logger}
	hdeps := &loggingHangupDeps{logger: logger}

	mgrCfg := callmgr.Config{
		CleanupInterval:      cfg.CleanupInterval,
		IdleContextTTL:       cfg.IdleContextTTL,
		SecureContextTimeout: cfg.SecureContextTimeout,
		HangupTimeout:        cfg.HangupTimeout,
	}
	manager := callmgr.New(mgrCfg, nil, notifier, hdeps, logger)
	defer manager.Stop()

	logger.Infow("ai call switch ready, awaiting the SIP/WebRTC transport layer (out of scope for this subsystem)")

	if dialDestination != "" {
		go func() {
			topo := scenario.Topology{CallerIsServer: true}
			cc, _, err := manager.MakeCall(ctx, dialDestination, "ai-agent", nil, topo, sdeps)
			if err != nil {
				logger.Warnw("dial command failed", "destination", dialDestination, "error", err)
				return
			}
			logger.Infow("dial command placed outbound call", "call_id", cc.CallID, "destination", dialDestination)
		}()
	}

	<-ctx.Done()
	logger.Infow("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.NotificationTimeout)
	defer shutdownCancel()
	if err := notifier.Close(shutdownCtx); err != nil {
		logger.Warnw("signalling notifier did not drain cleanly", "error", err)
	}
	logger.Infow("shutdown complete")
}

// logOnlyTransport is a placeholder signalling.Transport: it logs every
// event it would have delivered instead of pushing to a real per-user
// channel, since the outer signalling surface (websocket/HTTP push to
// browser or mobile clients) lives outside this subsystem's scope.
type logOnlyTransport struct {
	logger logging.Logger
}

func (t *logOnlyTransport) Send(userID string, ev signalling.Event) error {
	t.logger.Debugw("signalling: deliver", "user_id", userID, "event", ev.Type, "call_id", ev.CallID)
	return nil
}

// loggingScenarioDeps stands in for the real SIP/WebRTC transport that
// would accept requests, negotiate SDP and push offers to callees. Every
// call-scenario transition function is otherwise fully implemented in
// internal/scenario.
type loggingScenarioDeps struct {
	logger logging.Logger
}

func (d *loggingScenarioDeps) AcceptRequest(req *sip.Request) error {
	d.logger.Debugw("scenario: accept request")
	return nil
}
func (d *loggingScenarioDeps) SendSessionProgress(req *sip.Request) error {
	d.logger.Debugw("scenario: send session progress")
	return nil
}
func (d *loggingScenarioDeps) CreateOffer() (*webrtc.SessionDescription, error) {
	d.logger.Debugw("scenario: create offer")
	return &webrtc.SessionDescription{}, nil
}
func (d *loggingScenarioDeps) SetRemoteDescription(sdp *webrtc.SessionDescription) error {
	d.logger.Debugw("scenario: set remote description")
	return nil
}
func (d *loggingScenarioDeps) PushOfferToCallee(callID string, offer *webrtc.SessionDescription) error {
	d.logger.Debugw("scenario: push offer to callee", "call_id", callID)
	return nil
}
func (d *loggingScenarioDeps) AcquireClient(serverOnly bool) error {
	d.logger.Debugw("scenario: acquire client", "server_only", serverOnly)
	return nil
}
func (d *loggingScenarioDeps) AnswerSDP(callID string, answer *webrtc.SessionDescription) error {
	d.logger.Debugw("scenario: answer sdp", "call_id", callID)
	return nil
}
func (d *loggingScenarioDeps) SendInvite(callID string, offNet bool) error {
	d.logger.Debugw("scenario: send invite", "call_id", callID, "off_net", offNet)
	return nil
}
func (d *loggingScenarioDeps) InvokeOrchestrator(callID string) error {
	d.logger.Infow("scenario: invoke orchestrator", "call_id", callID)
	return nil
}

var _ scenario.Deps = (*loggingScenarioDeps)(nil)

// loggingHangupDeps stands in for the real client handles a call manager
// would hang up, cancel and shut down.
type loggingHangupDeps struct {
	logger logging.Logger
}

func (d *loggingHangupDeps) HangupParty(userID string) error {
	d.logger.Debugw("callmgr: hangup party", "user_id", userID)
	return nil
}
func (d *loggingHangupDeps) CancelParty(userID string) error {
	d.logger.Debugw("callmgr: cancel party", "user_id", userID)
	return nil
}
func (d *loggingHangupDeps) ShutdownClient(callID string) error {
	d.logger.Debugw("callmgr: shutdown client", "call_id", callID)
	return nil
}
func (d *loggingHangupDeps) AddICECandidate(userID, candidate string) error {
	d.logger.Debugw("callmgr: add ice candidate", "user_id", userID)
	return nil
}
