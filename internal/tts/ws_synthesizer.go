package tts

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"aicallswitch/internal/logging"
)

// WSSynthesizer synthesizes speech over a streaming websocket provider,
// receiving base64-encoded PCM16LE audio chunks and converting them to
// float32 samples for the resampler.
type WSSynthesizer struct {
	providerURL string
	sampleRate  int
	logger      logging.Logger
}

// NewWSSynthesizer creates a synthesizer pointed at providerURL (ws:// or
// wss://), yielding audio at sampleRate (before any downstream resampling).
func NewWSSynthesizer(providerURL string, sampleRate int, logger logging.Logger) *WSSynthesizer {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &WSSynthesizer{providerURL: providerURL, sampleRate: sampleRate, logger: logger}
}

type synthRequest struct {
	Text       string  `json:"text"`
	SpeakerID  string  `json:"speaker_id"`
	Speed      float64 `json:"speed"`
	SampleRate int     `json:"sample_rate"`
	Encoding   string  `json:"encoding"`
}

type synthMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
	Err  string `json:"error"`
}

// wsSource pulls decoded chunks off a background reader goroutine through a
// buffered channel, so Next never blocks on JSON parsing directly.
type wsSource struct {
	conn   *websocket.Conn
	chunks chan Chunk
	errs   chan error
	done   chan struct{}
	rate   int
	logger logging.Logger
}

func (s *WSSynthesizer) Synthesize(ctx context.Context, text, speakerID string, speed float64) (Source, error) {
	if _, err := url.Parse(s.providerURL); err != nil {
		return nil, fmt.Errorf("tts: invalid provider url: %w", err)
	}

	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, s.providerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("tts: dial failed: %w", err)
	}

	req := synthRequest{
		Text:       text,
		SpeakerID:  speakerID,
		Speed:      speed,
		SampleRate: s.sampleRate,
		Encoding:   "pcm_s16le",
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tts: request failed: %w", err)
	}

	src := &wsSource{
		conn:   conn,
		chunks: make(chan Chunk, 8),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		rate:   s.sampleRate,
		logger: s.logger,
	}
	go src.readLoop()
	return src, nil
}

func (s *wsSource) readLoop() {
	defer close(s.chunks)
	for {
		var msg synthMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case s.errs <- err:
			default:
			}
			return
		}
		switch msg.Type {
		case "chunk":
			raw, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				s.logger.Warnw("tts: malformed audio chunk, skipping", "error", err)
				continue
			}
			samples := pcm16ToFloat32(raw)
			select {
			case s.chunks <- Chunk{Samples: samples, SampleRate: s.rate}:
			case <-s.done:
				return
			}
		case "done":
			return
		case "error":
			select {
			case s.errs <- fmt.Errorf("tts: provider error: %s", msg.Err):
			default:
			}
			return
		}
	}
}

func (s *wsSource) Next(ctx context.Context) (Chunk, error) {
	select {
	case c, ok := <-s.chunks:
		if !ok {
			select {
			case err := <-s.errs:
				return Chunk{}, err
			default:
				return Chunk{}, ErrStreamEnded
			}
		}
		return c, nil
	case err := <-s.errs:
		return Chunk{}, err
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

func (s *wsSource) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}
