// Package media defines the data model shared by every component of the
// audio plane: the negotiated MediaProfile and the encoded Frame unit.
package media

import "fmt"

// Codec identifies the negotiated G.711 variant.
type Codec int

const (
	CodecMulaw Codec = iota
	CodecAlaw
)

func (c Codec) String() string {
	switch c {
	case CodecMulaw:
		return "PCMU"
	case CodecAlaw:
		return "PCMA"
	default:
		return "unknown"
	}
}

// PayloadType returns the RTP static payload type for the codec (0 or 8).
func (c Codec) PayloadType() uint8 {
	if c == CodecAlaw {
		return 8
	}
	return 0
}

// CodecFromPayloadType maps an RTP payload type back to a Codec.
func CodecFromPayloadType(pt uint8) (Codec, error) {
	switch pt {
	case 0:
		return CodecMulaw, nil
	case 8:
		return CodecAlaw, nil
	default:
		return 0, fmt.Errorf("unsupported payload type %d", pt)
	}
}

// Profile is the negotiated media profile for one call.
type Profile struct {
	Codec        Codec
	SampleRateHz int
	PtimeMs      int
	Channels     int
}

// DefaultProfile returns the canonical 8kHz/20ms/mono µ-law profile.
func DefaultProfile() Profile {
	return Profile{
		Codec:        CodecMulaw,
		SampleRateHz: 8000,
		PtimeMs:      20,
		Channels:     1,
	}
}

// SamplesPerFrame returns sample_rate_hz * ptime_ms / 1000.
func (p Profile) SamplesPerFrame() int {
	return p.SampleRateHz * p.PtimeMs / 1000
}

// FrameBytesPCM16 returns 2 * SamplesPerFrame.
func (p Profile) FrameBytesPCM16() int {
	return 2 * p.SamplesPerFrame()
}

// FrameBytesEncoded returns SamplesPerFrame (one byte per G.711 sample).
func (p Profile) FrameBytesEncoded() int {
	return p.SamplesPerFrame()
}

// Frame is an encoded G.711 payload, exactly FrameBytesEncoded() bytes.
// Immutable once enqueued into the jitter buffer.
type Frame []byte

// SilenceFrame returns a precomputed silence frame for the profile's codec:
// 0xFF for µ-law (encodes PCM16 zero), 0xD5 for A-law.
func SilenceFrame(p Profile) Frame {
	n := p.FrameBytesEncoded()
	f := make(Frame, n)
	fill := byte(0xFF)
	if p.Codec == CodecAlaw {
		fill = 0xD5
	}
	for i := range f {
		f[i] = fill
	}
	return f
}
