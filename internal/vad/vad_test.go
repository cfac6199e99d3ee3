package vad

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func pcmOfAmplitude(amp int16, n int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amp))
	}
	return buf
}

func TestDetector_EmptyOrOddInputIsSilenceZero(t *testing.T) {
	d := New(DefaultConfig())
	now := time.Now()
	assert.Equal(t, Result{State: Silence, Energy: 0}, d.Process(nil, now))
	assert.Equal(t, Result{State: Silence, Energy: 0}, d.Process([]byte{0x01}, now))
}

func TestDetector_AttackRequiresSustainedEnergy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AttackMs = 200 * time.Millisecond
	d := New(cfg)
	loud := pcmOfAmplitude(20000, 160)

	now := time.Now()
	r := d.Process(loud, now)
	assert.Equal(t, Transitional, r.State)
	assert.False(t, d.IsSpeaking())

	r = d.Process(loud, now.Add(100*time.Millisecond))
	assert.Equal(t, Transitional, r.State)
	assert.False(t, d.IsSpeaking())

	r = d.Process(loud, now.Add(201*time.Millisecond))
	assert.Equal(t, Speaking, r.State)
	assert.True(t, d.IsSpeaking())
}

func TestDetector_ReleaseRequiresSustainedSilence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AttackMs = 10 * time.Millisecond
	cfg.ReleaseMs = 600 * time.Millisecond
	d := New(cfg)
	loud := pcmOfAmplitude(20000, 160)
	quiet := pcmOfAmplitude(0, 160)

	now := time.Now()
	d.Process(loud, now)
	d.Process(loud, now.Add(11*time.Millisecond))
	assert.True(t, d.IsSpeaking())

	r := d.Process(quiet, now.Add(20*time.Millisecond))
	assert.Equal(t, Transitional, r.State)
	assert.True(t, d.IsSpeaking())

	r = d.Process(quiet, now.Add(700*time.Millisecond))
	assert.Equal(t, Silence, r.State)
	assert.False(t, d.IsSpeaking())
}

func TestDetector_Reset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AttackMs = time.Millisecond
	d := New(cfg)
	loud := pcmOfAmplitude(20000, 160)
	now := time.Now()
	d.Process(loud, now)
	d.Process(loud, now.Add(2*time.Millisecond))
	assert.True(t, d.IsSpeaking())

	d.Reset()
	assert.False(t, d.IsSpeaking())
}
