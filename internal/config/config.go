// Package config loads the AI call switch configuration from YAML using a
// staging-struct-then-validate shape: a nested yamlConfig mirrors the file
// layout and is flattened onto Default() before validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the call switch pipeline.
type Config struct {
	JitterWaterline       int
	LowWatermark          int
	PreBufferChunks       int
	VADDebounce           time.Duration
	VADThreshold          float32
	VADAttack             time.Duration
	VADRelease            time.Duration
	Ptime                 time.Duration
	NotificationTimeout   time.Duration
	HangupTimeout         time.Duration
	SecureContextTimeout  time.Duration
	CleanupInterval       time.Duration
	IdleContextTTL        time.Duration
	EncoderParallelism    int
	ResamplerQuality      string
	RecorderOutputRateHz  int
	RecorderFlushPackets  int
	SIPBindPort           int
	SIPTransport          string
	TTSProviderURL        string
	EnableDTMF            bool
	DTMFPayloadType       int
}

type yamlConfig struct {
	Jitter struct {
		Waterline    int `yaml:"waterline"`
		LowWatermark int `yaml:"low_watermark"`
	} `yaml:"jitter"`
	Playback struct {
		PreBufferChunks     int    `yaml:"pre_buffer_chunks"`
		PtimeMs             int    `yaml:"ptime_ms"`
		EncoderParallelism  int    `yaml:"encoder_parallelism"`
		ResamplerQuality    string `yaml:"resampler_quality"`
	} `yaml:"playback"`
	VAD struct {
		DebounceMs int     `yaml:"debounce_ms"`
		Threshold  float32 `yaml:"threshold"`
		AttackMs   int     `yaml:"attack_ms"`
		ReleaseMs  int     `yaml:"release_ms"`
	} `yaml:"vad"`
	Timeouts struct {
		NotificationMs    int `yaml:"notification_ms"`
		HangupMs          int `yaml:"hangup_ms"`
		SecureContextMs   int `yaml:"secure_context_ms"`
		CleanupIntervalMs int `yaml:"cleanup_interval_ms"`
		IdleContextTTLMs  int `yaml:"idle_context_ttl_ms"`
	} `yaml:"timeouts"`
	Recorder struct {
		OutputRateHz  int `yaml:"output_rate_hz"`
		FlushPackets  int `yaml:"flush_packets"`
	} `yaml:"recorder"`
	SIP struct {
		BindPort  int    `yaml:"bind_port"`
		Transport string `yaml:"transport"`
	} `yaml:"sip"`
	TTS struct {
		ProviderURL string `yaml:"provider_url"`
	} `yaml:"tts"`
	DTMF struct {
		Enabled     bool `yaml:"enabled"`
		PayloadType int  `yaml:"payload_type"`
	} `yaml:"dtmf"`
}

// Default returns the configuration with every documented default applied.
func Default() Config {
	return Config{
		JitterWaterline:      300,
		LowWatermark:         100,
		PreBufferChunks:      3,
		VADDebounce:          100 * time.Millisecond,
		VADThreshold:         0.02,
		VADAttack:            200 * time.Millisecond,
		VADRelease:           600 * time.Millisecond,
		Ptime:                20 * time.Millisecond,
		NotificationTimeout:  2 * time.Second,
		HangupTimeout:        10 * time.Second,
		SecureContextTimeout: 10 * time.Second,
		CleanupInterval:      5 * time.Second,
		IdleContextTTL:       30 * time.Second,
		EncoderParallelism:   (runtime.NumCPU() + 1) / 2, // ceil(cores/2)
		ResamplerQuality:     "sinc",
		RecorderOutputRateHz: 16000,
		RecorderFlushPackets: 200,
		SIPBindPort:          5060,
		SIPTransport:         "udp",
		EnableDTMF:           true,
		DTMFPayloadType:      101,
	}
}

// Load reads a YAML file at path, overlaying it onto Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if yc.Jitter.Waterline > 0 {
		cfg.JitterWaterline = yc.Jitter.Waterline
	}
	if yc.Jitter.LowWatermark > 0 {
		cfg.LowWatermark = yc.Jitter.LowWatermark
	}
	if yc.Playback.PreBufferChunks > 0 {
		cfg.PreBufferChunks = yc.Playback.PreBufferChunks
	}
	if yc.Playback.PtimeMs > 0 {
		cfg.Ptime = time.Duration(yc.Playback.PtimeMs) * time.Millisecond
	}
	if yc.Playback.EncoderParallelism > 0 {
		cfg.EncoderParallelism = yc.Playback.EncoderParallelism
	}
	if yc.Playback.ResamplerQuality != "" {
		cfg.ResamplerQuality = yc.Playback.ResamplerQuality
	}
	if yc.VAD.DebounceMs > 0 {
		cfg.VADDebounce = time.Duration(yc.VAD.DebounceMs) * time.Millisecond
	}
	if yc.VAD.Threshold > 0 {
		cfg.VADThreshold = yc.VAD.Threshold
	}
	if yc.VAD.AttackMs > 0 {
		cfg.VADAttack = time.Duration(yc.VAD.AttackMs) * time.Millisecond
	}
	if yc.VAD.ReleaseMs > 0 {
		cfg.VADRelease = time.Duration(yc.VAD.ReleaseMs) * time.Millisecond
	}
	if yc.Timeouts.NotificationMs > 0 {
		cfg.NotificationTimeout = time.Duration(yc.Timeouts.NotificationMs) * time.Millisecond
	}
	if yc.Timeouts.HangupMs > 0 {
		cfg.HangupTimeout = time.Duration(yc.Timeouts.HangupMs) * time.Millisecond
	}
	if yc.Timeouts.SecureContextMs > 0 {
		cfg.SecureContextTimeout = time.Duration(yc.Timeouts.SecureContextMs) * time.Millisecond
	}
	if yc.Timeouts.CleanupIntervalMs > 0 {
		cfg.CleanupInterval = time.Duration(yc.Timeouts.CleanupIntervalMs) * time.Millisecond
	}
	if yc.Timeouts.IdleContextTTLMs > 0 {
		cfg.IdleContextTTL = time.Duration(yc.Timeouts.IdleContextTTLMs) * time.Millisecond
	}
	if yc.Recorder.OutputRateHz > 0 {
		cfg.RecorderOutputRateHz = yc.Recorder.OutputRateHz
	}
	if yc.Recorder.FlushPackets > 0 {
		cfg.RecorderFlushPackets = yc.Recorder.FlushPackets
	}
	if yc.SIP.BindPort > 0 {
		cfg.SIPBindPort = yc.SIP.BindPort
	}
	if yc.SIP.Transport != "" {
		cfg.SIPTransport = yc.SIP.Transport
	}
	if cfg.SIPTransport != "udp" && cfg.SIPTransport != "tcp" {
		return Config{}, fmt.Errorf("sip.transport must be 'udp' or 'tcp', got %q", cfg.SIPTransport)
	}
	cfg.TTSProviderURL = yc.TTS.ProviderURL

	cfg.EnableDTMF = yc.DTMF.Enabled
	if yc.DTMF.PayloadType > 0 {
		cfg.DTMFPayloadType = yc.DTMF.PayloadType
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.LowWatermark >= c.JitterWaterline {
		return errors.New("jitter.low_watermark must be less than jitter.waterline")
	}
	if c.PreBufferChunks < 1 {
		return errors.New("playback.pre_buffer_chunks must be >= 1")
	}
	return nil
}
