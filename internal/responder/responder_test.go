package responder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aicallswitch/internal/logging"
	"aicallswitch/internal/media"
	"aicallswitch/internal/playout"
	"aicallswitch/internal/resample"
	"aicallswitch/internal/tts"
	"aicallswitch/internal/vad"
)

type fakeSource struct {
	mu     sync.Mutex
	chunks []tts.Chunk
	i      int
}

func (s *fakeSource) Next(ctx context.Context) (tts.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.chunks) {
		return tts.Chunk{}, tts.ErrStreamEnded
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}
func (s *fakeSource) Close() error { return nil }

type fakeSynth struct{ rate int }

func (f *fakeSynth) Synthesize(ctx context.Context, text, speakerID string, speed float64) (tts.Source, error) {
	chunks := make([]tts.Chunk, 6)
	for i := range chunks {
		samples := make([]float32, 100)
		for j := range samples {
			samples[j] = 0.05
		}
		chunks[i] = tts.Chunk{Samples: samples, SampleRate: f.rate}
	}
	return &fakeSource{chunks: chunks}, nil
}

type countingSubscriber struct {
	mu    sync.Mutex
	count int
}

func (c *countingSubscriber) OutgoingAudioGenerated(media.Frame) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}
func (c *countingSubscriber) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func testConfig(profile media.Profile) Config {
	return Config{
		Playout: playout.Config{
			JitterWaterline: 2,
			LowWatermark:    1,
			PtimeMs:         2 * time.Millisecond,
		},
		VAD:                vad.DefaultConfig(),
		GateDebounce:       100 * time.Millisecond,
		EncoderParallelism: 2,
		ResamplerOutRateHz: profile.SampleRateHz,
		ResamplerQuality:   resample.QualityPassthrough,
	}
}

func TestResponder_PlayScriptThenWaitCompletes(t *testing.T) {
	profile := media.DefaultProfile()
	r := New(profile, testConfig(profile), &fakeSynth{rate: profile.SampleRateHz}, logging.NewNop())
	sub := &countingSubscriber{}
	r.Subscribe(sub)
	r.Start()
	defer r.Dispose()

	dur, err := r.PlayScript(context.Background(), "hello there", "spk", 1.0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, dur, time.Duration(0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.WaitForPlaybackComplete(ctx)

	assert.Greater(t, sub.Count(), 0)
}

func TestResponder_PlayScriptBeforeStartFails(t *testing.T) {
	profile := media.DefaultProfile()
	r := New(profile, testConfig(profile), &fakeSynth{rate: profile.SampleRateHz}, logging.NewNop())
	_, err := r.PlayScript(context.Background(), "hi", "spk", 1.0)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestResponder_StopIsIdempotent(t *testing.T) {
	profile := media.DefaultProfile()
	r := New(profile, testConfig(profile), &fakeSynth{rate: profile.SampleRateHz}, logging.NewNop())
	r.Start()
	r.Stop()
	r.Stop()
}

func TestResponder_OnUplinkPCMClosesGateWhenSpeaking(t *testing.T) {
	profile := media.DefaultProfile()
	cfg := testConfig(profile)
	cfg.VAD.AttackMs = time.Millisecond
	r := New(profile, cfg, &fakeSynth{rate: profile.SampleRateHz}, logging.NewNop())
	r.Start()
	defer r.Dispose()

	loud := make([]byte, 320)
	for i := 0; i < len(loud); i += 2 {
		loud[i] = 0xFF
		loud[i+1] = 0x7F
	}
	now := time.Now()
	r.OnUplinkPCM(loud, now)
	r.OnUplinkPCM(loud, now.Add(2*time.Millisecond))
	assert.False(t, r.gate.ShouldSendAudio())
}
