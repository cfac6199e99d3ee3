// Package framer implements PlayScript's TTS ingest: pre-buffering the
// leading chunks of a synthesis stream to hide TTS cold-start latency,
// accumulating resampled PCM into whole codec frames, encoding them on a
// bounded worker pool, and enqueuing them in source order into a jitter
// buffer.
package framer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"aicallswitch/internal/codec"
	"aicallswitch/internal/jitter"
	"aicallswitch/internal/logging"
	"aicallswitch/internal/media"
	"aicallswitch/internal/playout"
	"aicallswitch/internal/resample"
	"aicallswitch/internal/tts"
)

const preBufferChunks = 3

// ErrIncompletePlayback is returned by PlayScript when a write lands on a
// jitter buffer that has already been closed (e.g. a concurrent Stop). The
// write is fatal for the current PlayScript rather than silently dropped.
var ErrIncompletePlayback = errors.New("framer: write to closed jitter buffer, playback incomplete")

// Framer drives one PlayScript invocation: it is not reused across calls,
// though the resampler cache and jitter buffer it writes into are owned by
// the surrounding responder and do outlive it.
type Framer struct {
	profile     media.Profile
	resamplers  *resample.Cache
	buf         *jitter.Buffer
	stats       *playout.Stats
	parallelism int
	logger      logging.Logger

	mu   sync.Mutex
	pcm  []byte // accumulator, mutated only under mu

	incomplete atomic.Bool
}

// New creates a Framer bound to profile, writing frames into buf and
// updating byte counters in stats. parallelism bounds the concurrent
// per-frame encode workers; values <1 are treated as 1.
func New(profile media.Profile, resamplers *resample.Cache, buf *jitter.Buffer, stats *playout.Stats, parallelism int, logger logging.Logger) *Framer {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Framer{
		profile:     profile,
		resamplers:  resamplers,
		buf:         buf,
		stats:       stats,
		parallelism: parallelism,
		logger:      logger,
	}
}

// PlayScript synthesizes text via synth and drives it through to the
// jitter buffer, returning the wall time spent generating TTS audio. It
// resets the framer's own accumulator and the shared stats counters on
// entry. The jitter buffer is closed once the stream ends, so any later
// PlayScript on the same Framer has its writes rejected.
func (f *Framer) PlayScript(ctx context.Context, synth tts.Synthesizer, text, speakerID string, speed float64) (dur time.Duration, err error) {
	f.mu.Lock()
	f.pcm = nil
	f.mu.Unlock()
	f.stats.Reset()
	f.incomplete.Store(false)

	defer func() {
		if err == nil && f.incomplete.Load() {
			err = ErrIncompletePlayback
		}
	}()

	start := time.Now()

	if ctx.Err() != nil {
		return time.Since(start), nil
	}

	source, err := synth.Synthesize(ctx, text, speakerID, speed)
	if err != nil {
		return time.Since(start), err
	}
	defer source.Close()

	var preBuf []tts.Chunk
	iterationStarted := false
	streamEnded := false
	var iterErr error

collectPreBuffer:
	for len(preBuf) < preBufferChunks {
		select {
		case <-ctx.Done():
			iterErr = ctx.Err()
			break collectPreBuffer
		default:
		}
		c, err := source.Next(ctx)
		iterationStarted = true
		if err != nil {
			if errors.Is(err, tts.ErrStreamEnded) {
				streamEnded = true
			} else {
				iterErr = err
			}
			break collectPreBuffer
		}
		if len(c.Samples) == 0 {
			continue
		}
		preBuf = append(preBuf, c)
	}

	cancelledBeforeStart := iterErr != nil && !iterationStarted

	if cancelledBeforeStart {
		return time.Since(start), nil
	}

	for _, c := range preBuf {
		f.processChunk(c)
	}

	if iterErr == nil && !streamEnded {
		for {
			select {
			case <-ctx.Done():
				iterErr = ctx.Err()
			default:
			}
			if iterErr != nil {
				break
			}
			c, err := source.Next(ctx)
			if err != nil {
				if errors.Is(err, tts.ErrStreamEnded) {
					streamEnded = true
				} else {
					iterErr = err
				}
				break
			}
			if len(c.Samples) == 0 {
				continue
			}
			f.processChunk(c)
		}
	}

	if streamEnded {
		f.flush()
		f.stats.SetStreamFinished()
		return time.Since(start), nil
	}

	// Cancelled mid-stream: per-call contract is to drain what was already
	// fetched (done above) and not force a flush of the remainder.
	if iterErr != nil && !errors.Is(iterErr, context.Canceled) && !errors.Is(iterErr, context.DeadlineExceeded) {
		return time.Since(start), iterErr
	}
	return time.Since(start), nil
}

// processChunk implements process_chunk: resample, accumulate, split into
// whole frames, encode them (optionally in parallel), enqueue in order.
func (f *Framer) processChunk(c tts.Chunk) {
	r := f.resamplers.Get(c.SampleRate)
	pcm := r.Resample(c.Samples)

	frameBytes := f.profile.FrameBytesPCM16()

	f.mu.Lock()
	f.pcm = append(f.pcm, pcm...)
	var whole [][]byte
	for len(f.pcm) >= frameBytes {
		frame := make([]byte, frameBytes)
		copy(frame, f.pcm[:frameBytes])
		whole = append(whole, frame)
		f.pcm = f.pcm[frameBytes:]
	}
	f.mu.Unlock()

	f.encodeAndEnqueue(whole)
}

// flush zero-pads any PCM remainder to one full frame, encodes, and enqueues
// it, then closes the jitter buffer writer side.
func (f *Framer) flush() {
	frameBytes := f.profile.FrameBytesPCM16()

	f.mu.Lock()
	var last []byte
	if len(f.pcm) > 0 {
		last = make([]byte, frameBytes)
		copy(last, f.pcm)
		f.pcm = nil
	}
	f.mu.Unlock()

	if last != nil {
		f.encodeAndEnqueue([][]byte{last})
	}
	f.buf.Close()
}

// encodeAndEnqueue G.711-encodes each PCM frame, using up to f.parallelism
// concurrent workers, then enqueues the results in source order.
func (f *Framer) encodeAndEnqueue(pcmFrames [][]byte) {
	if len(pcmFrames) == 0 {
		return
	}

	encoded := make([]media.Frame, len(pcmFrames))
	sem := semaphore.NewWeighted(int64(f.parallelism))
	g, ctx := errgroup.WithContext(context.Background())

	for i, pcm := range pcmFrames {
		i, pcm := i, pcm
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			out, err := codec.Encode(f.profile.Codec, pcm)
			if err != nil {
				f.logger.Warnw("framer: encode failed, dropping frame", "index", i, "error", err)
				return nil
			}
			encoded[i] = media.Frame(out)
			return nil
		})
	}
	_ = g.Wait()

	for _, frame := range encoded {
		if frame == nil {
			continue
		}
		if !f.buf.Write(frame) {
			f.incomplete.Store(true)
			return
		}
		f.stats.AddBytesGenerated(len(frame))
	}
}
