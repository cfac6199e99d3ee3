package playout

import "sync/atomic"

// State is one of the playout loop's pseudo-states.
type State int

const (
	Warmup State = iota
	Emit
	Rebuffer
	Shutdown
)

func (s State) String() string {
	switch s {
	case Warmup:
		return "warmup"
	case Emit:
		return "emit"
	case Rebuffer:
		return "rebuffer"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Stats holds the byte counters one PlayScript session tracks, shared
// between the TTS ingest side and the playout loop. Safe for concurrent use.
type Stats struct {
	totalBytesSent      atomic.Int64
	totalBytesGenerated atomic.Int64
	ttsStreamFinished   atomic.Bool
}

// NewStats returns a zeroed, not-yet-finished Stats.
func NewStats() *Stats {
	return &Stats{}
}

// Reset zeroes counters for a fresh PlayScript call on the same responder.
func (s *Stats) Reset() {
	s.totalBytesSent.Store(0)
	s.totalBytesGenerated.Store(0)
	s.ttsStreamFinished.Store(false)
}

func (s *Stats) AddBytesSent(n int)                { s.totalBytesSent.Add(int64(n)) }
func (s *Stats) AddBytesGenerated(n int)           { s.totalBytesGenerated.Add(int64(n)) }
func (s *Stats) BytesSent() int64                  { return s.totalBytesSent.Load() }
func (s *Stats) BytesGenerated() int64             { return s.totalBytesGenerated.Load() }
func (s *Stats) SetStreamFinished()                { s.ttsStreamFinished.Store(true) }
func (s *Stats) StreamFinished() bool              { return s.ttsStreamFinished.Load() }

// Complete reports whether the producer is done and every generated byte has
// reached the sink: the playout loop's exit condition.
func (s *Stats) Complete(depth int) bool {
	return s.StreamFinished() && depth == 0 && s.BytesSent() >= s.BytesGenerated()
}
