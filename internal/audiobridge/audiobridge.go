// Package audiobridge glues an AI auto-responder to a SIP media session: it
// forwards emitted frames onto the outbound RTP track and routes inbound
// decoded PCM into the responder's uplink voice activity detector.
package audiobridge

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/rtp"

	"aicallswitch/internal/codec"
	"aicallswitch/internal/logging"
	"aicallswitch/internal/media"
)

// ErrNotInitialized is returned by Start when called before Init, and by
// InjectOutgoing when called before Start. ProcessIncoming and
// ProcessIncomingRTP return nothing and ignore input before Start.
var ErrNotInitialized = errors.New("audiobridge: not initialized")

// dtmfEventNames maps an RFC 4733 telephone-event code to its DTMF digit.
var dtmfEventNames = [...]string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "*", "#",
	"A", "B", "C", "D",
}

// DTMFEvent is the typed signalling event forwarded when ProcessIncomingRTP
// detects an inbound RFC 4733 telephone-event payload instead of decoding it
// as G.711 audio.
type DTMFEvent struct {
	Digit      string
	EndOfEvent bool
}

// DTMFSink receives detected DTMF events, satisfied by a signalling notifier
// adapter.
type DTMFSink interface {
	OnDTMFEvent(ev DTMFEvent)
}

// noopDTMFSink discards DTMF events; the default when DTMF is not configured.
type noopDTMFSink struct{}

func (noopDTMFSink) OnDTMFEvent(DTMFEvent) {}

// OutboundTrack is the destination for outbound RTP packets, satisfied by
// the SIP media session's RTP writer.
type OutboundTrack interface {
	WriteRTP(pkt *rtp.Packet) error
}

// UplinkSink receives inbound PCM for voice-activity processing, satisfied
// by an AI auto-responder.
type UplinkSink interface {
	OnUplinkPCM(pcm []byte, now time.Time)
}

// Bridge is the two-port glue component: inject_outgoing and
// process_incoming. Must be Init'd with a MediaProfile before Start.
type Bridge struct {
	track  OutboundTrack
	uplink UplinkSink
	dtmf   DTMFSink
	logger logging.Logger

	mu              sync.Mutex
	profile         media.Profile
	ready           bool
	started         bool
	seq             uint16
	timestamp       uint32
	ssrc            uint32
	dtmfEnabled     bool
	dtmfPayloadType uint8
}

// New creates a Bridge wired to track (outbound) and uplink (inbound VAD
// sink). ssrc identifies this bridge's outbound RTP stream. DTMF detection
// is disabled until EnableDTMF is called.
func New(track OutboundTrack, uplink UplinkSink, ssrc uint32, logger logging.Logger) *Bridge {
	return &Bridge{track: track, uplink: uplink, dtmf: noopDTMFSink{}, ssrc: ssrc, logger: logger}
}

// Init binds the media profile. Must be called before Start.
func (b *Bridge) Init(profile media.Profile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profile = profile
	b.ready = true
}

// EnableDTMF arms telephone-event detection on ProcessIncomingRTP: inbound
// packets carrying payloadType are forwarded to sink as DTMFEvents instead
// of being decoded as G.711 audio. Must be called before Start.
func (b *Bridge) EnableDTMF(payloadType uint8, sink DTMFSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dtmfEnabled = true
	b.dtmfPayloadType = payloadType
	if sink != nil {
		b.dtmf = sink
	}
}

// Start activates the bridge. It is an error to call Start before Init.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return ErrNotInitialized
	}
	b.started = true
	return nil
}

// InjectOutgoing forwards one encoded frame onto the outbound RTP track.
// A frame whose size does not match the negotiated profile is dropped with
// a warning rather than sent malformed.
func (b *Bridge) InjectOutgoing(frame media.Frame) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return ErrNotInitialized
	}
	expected := b.profile.FrameBytesEncoded()
	if len(frame) != expected {
		b.logger.Warnw("audiobridge: dropping malformed outgoing frame",
			"expected_bytes", expected, "got_bytes", len(frame))
		b.mu.Unlock()
		return nil
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    b.profile.Codec.PayloadType(),
			SequenceNumber: b.seq,
			Timestamp:      b.timestamp,
			SSRC:           b.ssrc,
		},
		Payload: frame,
	}
	b.seq++
	b.timestamp += uint32(b.profile.SamplesPerFrame())
	track := b.track
	b.mu.Unlock()

	return track.WriteRTP(pkt)
}

// ProcessIncomingRTP is the RTP-level entry point for inbound media: it
// detects telephone-event (DTMF) payloads before they ever reach G.711
// decode and forwards them as a typed DTMFEvent instead, then decodes and
// routes every other payload through ProcessIncoming as before.
func (b *Bridge) ProcessIncomingRTP(pkt *rtp.Packet) {
	b.mu.Lock()
	started, profile, dtmfEnabled, dtmfPT := b.started, b.profile, b.dtmfEnabled, b.dtmfPayloadType
	b.mu.Unlock()
	if !started {
		return
	}

	if dtmfEnabled && pkt.PayloadType == dtmfPT {
		if ev, ok := decodeDTMFEvent(pkt.Payload); ok {
			b.dtmf.OnDTMFEvent(ev)
		}
		return
	}

	c, err := media.CodecFromPayloadType(pkt.PayloadType)
	if err != nil {
		b.logger.Warnw("audiobridge: dropping unsupported incoming payload type", "payload_type", pkt.PayloadType)
		return
	}
	pcm := codec.Decode(c, pkt.Payload)
	b.ProcessIncoming(pcm, profile.SampleRateHz)
}

// decodeDTMFEvent parses an RFC 4733 telephone-event payload: byte 0 is the
// event code, the high bit of byte 1 is the end-of-event marker.
func decodeDTMFEvent(payload []byte) (DTMFEvent, bool) {
	if len(payload) < 2 {
		return DTMFEvent{}, false
	}
	code := payload[0]
	if int(code) >= len(dtmfEventNames) {
		return DTMFEvent{}, false
	}
	return DTMFEvent{
		Digit:      dtmfEventNames[code],
		EndOfEvent: payload[1]&0x80 != 0,
	}, true
}

// ProcessIncoming routes decoded PCM at the given sample rate into the
// uplink VAD sink. When rate matches the negotiated profile's rate, frame
// size is checked and malformed frames are dropped with a warning; PCM at
// any other rate is forwarded as-is (the responder's own pipeline resamples
// on the TTS side, not the uplink side, so no alignment check applies here).
func (b *Bridge) ProcessIncoming(pcmBytes []byte, rate int) {
	b.mu.Lock()
	started, profile := b.started, b.profile
	b.mu.Unlock()
	if !started {
		return
	}

	if rate == profile.SampleRateHz {
		expected := profile.FrameBytesPCM16()
		if len(pcmBytes) != expected {
			b.logger.Warnw("audiobridge: dropping malformed incoming frame",
				"expected_bytes", expected, "got_bytes", len(pcmBytes))
			return
		}
	}

	b.uplink.OnUplinkPCM(pcmBytes, time.Now())
}
