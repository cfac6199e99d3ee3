// Package responder implements the AI auto-responder: the composite that
// owns one call's TTS playout lifecycle, wiring the framer (ingest), jitter
// buffer, playout loop, half-duplex gate, and voice activity detector
// together behind a small start/play/stop surface.
package responder

import (
	"context"
	"errors"
	"sync"
	"time"

	"aicallswitch/internal/framer"
	"aicallswitch/internal/jitter"
	"aicallswitch/internal/logging"
	"aicallswitch/internal/media"
	"aicallswitch/internal/playout"
	"aicallswitch/internal/resample"
	"aicallswitch/internal/tts"
	"aicallswitch/internal/vad"
)

// ErrNotStarted is returned by PlayScript when called before start().
var ErrNotStarted = errors.New("responder: not started")

// Subscriber receives every frame the responder emits.
type Subscriber interface {
	OutgoingAudioGenerated(frame media.Frame)
}

// Config bundles the tunables a Responder needs from the pipeline config.
type Config struct {
	Playout             playout.Config
	VAD                 vad.Config
	GateDebounce        time.Duration
	EncoderParallelism  int
	ResamplerOutRateHz  int
	ResamplerQuality    resample.Quality
}

// Responder is one AI auto-responder; one instance per active call leg that
// the AI speaks into.
type Responder struct {
	profile media.Profile
	cfg     Config
	synth   tts.Synthesizer
	logger  logging.Logger

	resamplers *resample.Cache
	gate       *playout.Gate
	vadDet     *vad.Detector

	lifecycleMu sync.Mutex
	started     bool
	disposed    bool
	ctx         context.Context
	cancel      context.CancelFunc

	playMu      sync.Mutex // single-flight: serializes play_script calls
	sessionMu   sync.Mutex // guards currentLoop/currentBuf for signal/wait/stop
	currentLoop *playout.Loop
	currentBuf  *jitter.Buffer

	subMu       sync.Mutex
	subscribers []Subscriber
}

// New creates a Responder bound to profile and synth. It does not start the
// playout subsystem; call Start first.
func New(profile media.Profile, cfg Config, synth tts.Synthesizer, logger logging.Logger) *Responder {
	if cfg.ResamplerOutRateHz <= 0 {
		cfg.ResamplerOutRateHz = profile.SampleRateHz
	}
	return &Responder{
		profile:    profile,
		cfg:        cfg,
		synth:      synth,
		logger:     logger,
		resamplers: resample.NewCache(cfg.ResamplerOutRateHz, cfg.ResamplerQuality, logger),
		gate:       playout.NewGate(cfg.GateDebounce),
		vadDet:     vad.New(cfg.VAD),
	}
}

// Start arms the responder's cancellation scope. Idempotent.
func (r *Responder) Start() {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()
	if r.started {
		return
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.started = true
}

// Subscribe registers s to receive OutgoingAudioGenerated events.
func (r *Responder) Subscribe(s Subscriber) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers = append(r.subscribers, s)
}

// OutgoingAudioGenerated implements playout.Sink, fanning each frame out to
// every subscriber.
func (r *Responder) OutgoingAudioGenerated(frame media.Frame) {
	r.subMu.Lock()
	subs := append([]Subscriber(nil), r.subscribers...)
	r.subMu.Unlock()
	for _, s := range subs {
		s.OutgoingAudioGenerated(frame)
	}
}

// PlayScript synthesizes text and streams it into a fresh jitter buffer and
// playout loop owned exclusively by this call. It returns once TTS
// generation (not necessarily playback) has completed, and may be called
// again serially once this call returns; concurrent calls are serialized by
// a single-flight lock rather than rejected. The session's playout keeps
// running after return until it drains, unless synthesis failed or
// produced no audio, in which case it is ended at once.
func (r *Responder) PlayScript(ctx context.Context, text, speakerID string, speed float64) (time.Duration, error) {
	r.lifecycleMu.Lock()
	started, rctx := r.started, r.ctx
	r.lifecycleMu.Unlock()
	if !started {
		return 0, ErrNotStarted
	}

	r.playMu.Lock()
	defer r.playMu.Unlock()

	sessionCtx, sessionCancel := context.WithCancel(rctx)
	go func() {
		select {
		case <-ctx.Done():
			sessionCancel()
		case <-sessionCtx.Done():
		}
	}()

	buf := jitter.New()
	stats := playout.NewStats()
	fr := framer.New(r.profile, r.resamplers, buf, stats, r.cfg.EncoderParallelism, r.logger)
	loop := playout.New(r.cfg.Playout, buf, r.gate, stats, r, media.SilenceFrame(r.profile), r.logger)

	r.sessionMu.Lock()
	r.currentLoop = loop
	r.currentBuf = buf
	r.sessionMu.Unlock()

	loopDone := make(chan struct{})
	go func() {
		loop.Run(sessionCtx)
		close(loopDone)
	}()

	dur, err := fr.PlayScript(sessionCtx, r.synth, text, speakerID, speed)
	if err != nil || stats.BytesGenerated() == 0 {
		// Nothing more will reach the buffer: end this session's playout now.
		sessionCancel()
	}

	go func() {
		<-loopDone
		sessionCancel()
		r.sessionMu.Lock()
		if r.currentLoop == loop {
			r.currentLoop = nil
			r.currentBuf = nil
		}
		r.sessionMu.Unlock()
	}()

	return dur, err
}

// WaitForPlaybackComplete awaits the completion future of whatever
// PlayScript call is currently in flight. It returns immediately if no
// session is active.
func (r *Responder) WaitForPlaybackComplete(ctx context.Context) {
	r.sessionMu.Lock()
	loop := r.currentLoop
	r.sessionMu.Unlock()
	if loop == nil {
		return
	}
	select {
	case <-loop.Done():
	case <-ctx.Done():
	}
}

// SignalPlayoutComplete requests the current playout loop stop at its next
// iteration. A no-op if no session is active.
func (r *Responder) SignalPlayoutComplete() {
	r.sessionMu.Lock()
	loop := r.currentLoop
	r.sessionMu.Unlock()
	if loop != nil {
		loop.Stop()
	}
}

// OnUplinkPCM forwards one inbound PCM frame to the voice activity detector
// and the debounced half-duplex gate.
func (r *Responder) OnUplinkPCM(pcm []byte, now time.Time) {
	result := r.vadDet.Process(pcm, now)
	r.gate.SetSpeaking(result.State == vad.Speaking, now)
}

// Stop closes the current jitter buffer writer, cancels the responder's
// scope, and awaits the playout loop's exit. Idempotent.
func (r *Responder) Stop() {
	r.lifecycleMu.Lock()
	if !r.started {
		r.lifecycleMu.Unlock()
		return
	}
	cancel := r.cancel
	r.lifecycleMu.Unlock()

	r.sessionMu.Lock()
	buf, loop := r.currentBuf, r.currentLoop
	r.sessionMu.Unlock()
	if buf != nil {
		buf.Close()
	}
	if cancel != nil {
		cancel()
	}
	if loop != nil {
		<-loop.Done()
	}
}

// Dispose stops the responder, evicts cached resamplers, and clears
// subscribers. Idempotent.
func (r *Responder) Dispose() {
	r.Stop()

	r.lifecycleMu.Lock()
	if r.disposed {
		r.lifecycleMu.Unlock()
		return
	}
	r.disposed = true
	r.lifecycleMu.Unlock()

	r.resamplers.Close()
	r.subMu.Lock()
	r.subscribers = nil
	r.subMu.Unlock()
}
