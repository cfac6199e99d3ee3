// Package playout implements the paced emission loop that drains a jitter
// buffer against wall-clock time: warmup until enough audio is queued,
// adaptive-delay emission, short rebuffer backoffs on underrun, and a
// half-duplex gate that substitutes silence while the remote party talks.
package playout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"aicallswitch/internal/jitter"
	"aicallswitch/internal/logging"
	"aicallswitch/internal/media"
)

// Sink receives each frame the loop decides to emit.
type Sink interface {
	OutgoingAudioGenerated(frame media.Frame)
}

// Config tunes the loop's timing.
type Config struct {
	JitterWaterline int
	LowWatermark    int
	PtimeMs         time.Duration
}

// Loop is one playout task, owned by exactly one AI auto-responder for the
// lifetime of one PlayScript session. Not reused across sessions: construct
// a fresh Loop per PlayScript call.
type Loop struct {
	cfg     Config
	buf     *jitter.Buffer
	gate    *Gate
	stats   *Stats
	sink    Sink
	silence media.Frame
	logger  logging.Logger

	shouldStop atomic.Bool

	completeOnce sync.Once
	complete     chan struct{}

	lastSentFrame   media.Frame
	emptyFrameCount int
	smoothedDelay   float64
}

// New creates a playout loop. silence is the precomputed silence frame for
// the active media profile.
func New(cfg Config, buf *jitter.Buffer, gate *Gate, stats *Stats, sink Sink, silence media.Frame, logger logging.Logger) *Loop {
	if cfg.PtimeMs <= 0 {
		cfg.PtimeMs = 20 * time.Millisecond
	}
	return &Loop{
		cfg:           cfg,
		buf:           buf,
		gate:          gate,
		stats:         stats,
		sink:          sink,
		silence:       silence,
		logger:        logger,
		complete:      make(chan struct{}),
		smoothedDelay: float64(cfg.PtimeMs),
	}
}

// Stop requests the loop exit at its next check. Safe to call multiple times
// and from a different goroutine than Run.
func (l *Loop) Stop() {
	l.shouldStop.Store(true)
}

// Done returns a channel closed exactly once, when playback completes
// (naturally or via Stop/ctx cancellation).
func (l *Loop) Done() <-chan struct{} {
	return l.complete
}

func (l *Loop) signalComplete() {
	l.completeOnce.Do(func() {
		close(l.complete)
	})
}

// Run executes warmup, emit, rebuffer and shutdown until completion. It
// blocks the calling goroutine; callers spawn it as the playout task.
func (l *Loop) Run(ctx context.Context) {
	defer l.signalComplete()

	if !l.warmup(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if l.shouldStop.Load() {
			return
		}

		depth := l.buf.Depth()
		if depth < l.cfg.LowWatermark && !l.stats.StreamFinished() {
			if !l.rebuffer(ctx) {
				return
			}
		}

		tickStart := time.Now()
		frame, done := l.getNextFrame()
		if done {
			return
		}
		l.sink.OutgoingAudioGenerated(frame)

		depth = l.buf.Depth()
		delay := l.adaptiveDelay(depth)
		sleepFor := delay - time.Since(tickStart)
		if sleepFor > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleepFor):
			}
		}
	}
}

// warmup waits until depth >= waterline, or the stream has finished with any
// backlog at all, or a stop has been requested. Returns false if the loop
// should exit without ever emitting (stopped or cancelled during warmup).
func (l *Loop) warmup(ctx context.Context) bool {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if l.shouldStop.Load() {
			return false
		}
		depth := l.buf.Depth()
		if depth >= l.cfg.JitterWaterline || (l.stats.StreamFinished() && depth > 0) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// rebuffer performs up to 5 backoff waits of 50+50k ms, then resumes
// regardless of whether depth recovered. Returns false only on stop/cancel.
func (l *Loop) rebuffer(ctx context.Context) bool {
	for k := 0; k < 5; k++ {
		if l.shouldStop.Load() {
			return false
		}
		depth := l.buf.Depth()
		if depth >= l.cfg.LowWatermark || l.stats.StreamFinished() {
			return true
		}
		wait := time.Duration(50+50*k) * time.Millisecond
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
	return true
}

// getNextFrame implements get_next_frame. done is true when playback has
// completed and the loop should exit without emitting a final frame.
func (l *Loop) getNextFrame() (frame media.Frame, done bool) {
	if !l.gate.ShouldSendAudio() {
		return l.silence, false
	}

	if f, ok := l.buf.Pop(); ok {
		l.lastSentFrame = f
		l.emptyFrameCount = 0
		l.stats.AddBytesSent(len(f))
		return f, false
	}

	depth := l.buf.Depth()
	if l.stats.Complete(depth) {
		return nil, true
	}

	l.emptyFrameCount++
	if l.emptyFrameCount == 1 && !l.stats.StreamFinished() {
		time.Sleep(2 * time.Millisecond)
		if f, ok := l.buf.Pop(); ok {
			l.lastSentFrame = f
			l.emptyFrameCount = 0
			l.stats.AddBytesSent(len(f))
			return f, false
		}
	}

	if l.lastSentFrame != nil {
		return l.lastSentFrame, false
	}
	return l.silence, false
}

// adaptiveDelay computes the EWMA-smoothed per-tick sleep duration, clamped
// to +/-5% of the nominal ptime. l.smoothedDelay is tracked in nanoseconds.
func (l *Loop) adaptiveDelay(depth int) time.Duration {
	ptimeNs := float64(l.cfg.PtimeMs.Nanoseconds())
	var factor float64
	switch {
	case depth == 0:
		factor = 1.02
	case depth < l.cfg.LowWatermark:
		factor = 1.01
	case depth > l.cfg.JitterWaterline:
		factor = 0.99
	default:
		factor = 1.00
	}
	d := ptimeNs * factor
	l.smoothedDelay = 0.3*d + 0.7*l.smoothedDelay

	lo := 0.95 * ptimeNs
	hi := 1.05 * ptimeNs
	clamped := l.smoothedDelay
	if clamped < lo {
		clamped = lo
	} else if clamped > hi {
		clamped = hi
	}
	return time.Duration(clamped)
}
