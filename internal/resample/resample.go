// Package resample implements cross-type (float32-in / int16-out)
// sample-rate conversion with a per-input-rate cache (ResamplerCache).
//
// Three quality tiers, selected by config.ResamplerQuality:
//   - "passthrough": byte copy when rates match and types already align.
//   - "linear": a dependency-free linear interpolator, also the fallback
//     path used whenever the "sinc" backend fails to initialize — the
//     call degrades to a lower quality tier and logs a warning rather
//     than failing outright.
//   - "sinc": github.com/tphakala/go-audio-resampler, a high-quality
//     polyphase/sinc resampler.
package resample

import (
	"encoding/binary"
	"math"
	"sync"

	audioresampler "github.com/tphakala/go-audio-resampler"

	"aicallswitch/internal/logging"
)

// Quality selects the resampling tier.
type Quality string

const (
	QualityPassthrough Quality = "passthrough"
	QualityLinear      Quality = "linear"
	QualitySinc        Quality = "sinc"
)

// Resampler converts a stream of float32 samples at a fixed input rate into
// 16-bit little-endian PCM bytes at a fixed output rate. A single instance
// is never invoked concurrently with itself (enforced by its own mutex);
// distinct instances (distinct input rates) may run in parallel.
type Resampler struct {
	mu      sync.Mutex
	inRate  int
	outRate int
	quality Quality
	sinc    sincBackend // nil if unavailable or quality != sinc
	logger  logging.Logger
}

// sincBackend narrows the third-party resampler to the one call this
// package needs, keeping the inferred API surface in one place.
type sincBackend interface {
	ProcessFloat32(in []float32) []float32
}

func newResampler(inRate, outRate int, quality Quality, logger logging.Logger) *Resampler {
	r := &Resampler{
		inRate:  inRate,
		outRate: outRate,
		quality: quality,
		logger:  logger,
	}
	if quality == QualitySinc && inRate != outRate {
		backend, err := audioresampler.NewResampler(inRate, outRate, 1)
		if err != nil {
			logger.Warnw("resample: sinc backend init failed, degrading to linear",
				"in_rate", inRate, "out_rate", outRate, "error", err)
			r.quality = QualityLinear
		} else {
			r.sinc = backend
		}
	}
	return r
}

// Resample converts float32 samples at r.inRate into PCM16LE bytes at r.outRate.
func (r *Resampler) Resample(in []float32) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(in) == 0 {
		return nil
	}

	if r.inRate == r.outRate {
		return floatsToPCM16(in)
	}

	switch {
	case r.quality == QualitySinc && r.sinc != nil:
		out, err := r.safeSincProcess(in)
		if err != nil {
			r.logger.Warnw("resample: sinc backend failed mid-stream, degrading to linear",
				"error", err)
			r.quality = QualityLinear
			r.sinc = nil
			return floatsToPCM16(linearResample(in, r.inRate, r.outRate))
		}
		return floatsToPCM16(out)
	default:
		return floatsToPCM16(linearResample(in, r.inRate, r.outRate))
	}
}

// safeSincProcess isolates a third-party call behind a recover, since a
// resampler library initializing successfully does not guarantee every
// input length is handled without panicking.
func (r *Resampler) safeSincProcess(in []float32) (out []float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errRecovered{rec}
		}
	}()
	out = r.sinc.ProcessFloat32(in)
	return out, nil
}

type errRecovered struct{ v interface{} }

func (e errRecovered) Error() string { return "panic in sinc resampler backend" }

func linearResample(in []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || len(in) == 0 {
		return nil
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(float64(len(in)) * ratio)
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		srcPos := float64(i) / ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx+1 < len(in) {
			out[i] = float32(float64(in[idx])*(1-frac) + float64(in[idx+1])*frac)
		} else {
			out[i] = in[len(in)-1]
		}
	}
	return out
}

func floatsToPCM16(in []float32) []byte {
	out := make([]byte, len(in)*2)
	for i, f := range in {
		v := f
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		s := int16(math.Round(float64(v) * 32767))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
