// Package recorder captures both legs of a call into a single stereo WAV:
// the left channel carries what was received from the far end, the right
// channel what was sent to it. Each leg is tapped as RTP arrives, decoded
// from G.711, buffered, and flushed in batches.
package recorder

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/go-audio/wav"
	"github.com/pion/rtp"

	"aicallswitch/internal/codec"
	"aicallswitch/internal/logging"
	"aicallswitch/internal/media"
	"aicallswitch/internal/resample"
)

const (
	dirReceived = 0
	dirSent     = 1

	bitDepth        = 16
	recordChannels  = 2
	wavAudioFormat  = 1 // PCM
)

// Status is the terminal or in-flight state of a recording session.
type Status int

const (
	StatusRecording Status = iota
	StatusFinalized
	StatusFailed
)

// Config carries the recorder's tunables.
type Config struct {
	// OutputRateHz is the sample rate written to the WAV file, independent
	// of the call's negotiated codec rate.
	OutputRateHz int
	// FlushEvery is the per-direction packet count that triggers a flush.
	FlushEvery int
}

// DefaultConfig returns the documented defaults (16kHz output, 200-packet batches).
func DefaultConfig() Config {
	return Config{OutputRateHz: 16000, FlushEvery: 200}
}

// wavEncoder narrows github.com/go-audio/wav's Encoder to the two calls
// this package makes, keeping the inferred API surface in one place.
type wavEncoder interface {
	AddLE(v interface{}) error
	Close() error
}

type tappedPacket struct {
	normalizedTS int64
	pcm          []byte
}

// Recorder owns one call's stereo recording session.
type Recorder struct {
	profile media.Profile
	cfg     Config
	logger  logging.Logger

	mu       sync.Mutex
	enc      wavEncoder
	status   Status
	resamp   [2]*resample.Resampler
	haveFirstTS [2]bool
	firstTS     [2]uint32
	lastProcessedTS [2]int64
	pending  [2][]tappedPacket
}

// New creates a Recorder writing to out (typically an *os.File, which
// satisfies io.WriteSeeker). profile is the call's negotiated codec/rate.
func New(profile media.Profile, cfg Config, out io.WriteSeeker, logger logging.Logger) *Recorder {
	if cfg.OutputRateHz <= 0 {
		cfg.OutputRateHz = 16000
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 200
	}
	r := &Recorder{
		profile: profile,
		cfg:     cfg,
		logger:  logger,
		enc:     wav.NewEncoder(out, cfg.OutputRateHz, bitDepth, recordChannels, wavAudioFormat),
	}
	r.resamp[dirReceived] = resample.NewCache(cfg.OutputRateHz, resample.QualityLinear, logger).Get(profile.SampleRateHz)
	r.resamp[dirSent] = resample.NewCache(cfg.OutputRateHz, resample.QualityLinear, logger).Get(profile.SampleRateHz)
	r.lastProcessedTS = [2]int64{-1, -1}
	return r
}

// TapReceived records one RTP packet arriving from the far end.
func (r *Recorder) TapReceived(pkt *rtp.Packet) { r.tap(dirReceived, pkt) }

// TapSent records one RTP packet sent to the far end.
func (r *Recorder) TapSent(pkt *rtp.Packet) { r.tap(dirSent, pkt) }

func (r *Recorder) tap(dir int, pkt *rtp.Packet) {
	c, err := media.CodecFromPayloadType(pkt.PayloadType)
	if err != nil {
		// Telephone-event (DTMF) and other non-G.711 payloads are not
		// recorded audio; skip without counting as a decode failure.
		return
	}
	pcm := codec.Decode(c, pkt.Payload)
	if len(pcm) == 0 {
		r.logger.Warnw("recorder: dropping undecodable packet", "direction", dir, "seq", pkt.SequenceNumber)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRecording {
		return
	}
	if !r.haveFirstTS[dir] {
		r.firstTS[dir] = pkt.Timestamp
		r.haveFirstTS[dir] = true
	}
	normalized := int64(pkt.Timestamp - r.firstTS[dir])
	r.pending[dir] = append(r.pending[dir], tappedPacket{normalizedTS: normalized, pcm: pcm})

	if len(r.pending[dirReceived]) >= r.cfg.FlushEvery || len(r.pending[dirSent]) >= r.cfg.FlushEvery {
		if err := r.flushLocked(); err != nil {
			r.logger.Errorw("recorder: flush failed", "error", err)
			r.status = StatusFailed
		}
	}
}

// flushLocked drains both pending buffers, orders and de-jitters each,
// resamples to the output rate, aligns the two channels to equal length,
// interleaves them, and writes the result. Caller holds r.mu.
func (r *Recorder) flushLocked() error {
	received := r.drainDirectionLocked(dirReceived)
	sent := r.drainDirectionLocked(dirSent)

	if len(received) == 0 && len(sent) == 0 {
		return nil
	}

	// The shorter side is zero-padded per flush, so the padding inserted at
	// each flush accumulates as drift between the two channels; they are
	// not re-aligned by RTP timestamp across flushes.
	n := len(received)
	if len(sent) > n {
		n = len(sent)
	}
	if len(received) < n {
		padded := make([]byte, n)
		copy(padded, received)
		received = padded
	}
	if len(sent) < n {
		padded := make([]byte, n)
		copy(padded, sent)
		sent = padded
	}

	return r.writeInterleaved(received, sent)
}

// drainDirectionLocked pops and orders dir's pending packets, dropping any
// whose normalized timestamp does not advance past the last one processed
// (out-of-order relative to what's already been written), then resamples
// the concatenated PCM to the output rate. Caller holds r.mu.
func (r *Recorder) drainDirectionLocked(dir int) []byte {
	pkts := r.pending[dir]
	r.pending[dir] = nil
	if len(pkts) == 0 {
		return nil
	}
	sort.Slice(pkts, func(i, j int) bool { return pkts[i].normalizedTS < pkts[j].normalizedTS })

	var pcm []byte
	for _, p := range pkts {
		if p.normalizedTS <= r.lastProcessedTS[dir] {
			continue
		}
		pcm = append(pcm, p.pcm...)
		r.lastProcessedTS[dir] = p.normalizedTS
	}
	if len(pcm) == 0 {
		return nil
	}
	return r.resamp[dir].Resample(pcm16ToFloat32(pcm))
}

func (r *Recorder) writeInterleaved(left, right []byte) error {
	samples := len(left) / 2
	for i := 0; i < samples; i++ {
		l := int16(uint16(left[2*i]) | uint16(left[2*i+1])<<8)
		rr := int16(uint16(right[2*i]) | uint16(right[2*i+1])<<8)
		if err := r.enc.AddLE(l); err != nil {
			return fmt.Errorf("recorder: write left sample: %w", err)
		}
		if err := r.enc.AddLE(rr); err != nil {
			return fmt.Errorf("recorder: write right sample: %w", err)
		}
	}
	return nil
}

// Finalize flushes any remaining buffered audio and closes the WAV
// container, patching in the final data size. Idempotent.
func (r *Recorder) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRecording {
		return nil
	}
	if err := r.flushLocked(); err != nil {
		r.status = StatusFailed
		return err
	}
	if err := r.enc.Close(); err != nil {
		r.status = StatusFailed
		return fmt.Errorf("recorder: close: %w", err)
	}
	r.status = StatusFinalized
	return nil
}

// Status reports the session's current state.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out
}
