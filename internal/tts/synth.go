// Package tts defines the lazy text-to-speech source the framer consumes:
// a sequence of {float_samples, sample_rate} chunks pulled one at a time so
// that TTS cold-start latency is hidden behind pre-buffering rather than
// paid up front.
package tts

import (
	"context"
	"errors"
)

// ErrStreamEnded is returned by Source.Next once the synthesis has
// completed normally; it plays the role of end-of-stream, not a failure.
var ErrStreamEnded = errors.New("tts: stream ended")

// Chunk is one unit of synthesized audio at its own sample rate.
type Chunk struct {
	Samples    []float32
	SampleRate int
}

// Source is a lazy, pull-based sequence of Chunks for one synthesis call.
// Next blocks until a chunk is ready, the stream ends (ErrStreamEnded), or
// ctx is cancelled. Not safe for concurrent calls to Next.
type Source interface {
	Next(ctx context.Context) (Chunk, error)
	Close() error
}

// Synthesizer opens a new Source for one PlayScript invocation.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, speakerID string, speed float64) (Source, error)
}
