// Package codec implements the G.711 codec. It is a pure function
// library: no internal state, safe to call from any goroutine in parallel.
// Conformance follows ITU-T G.711; the actual companding tables are provided
// by github.com/zaf/g711.
package codec

import (
	"errors"
	"fmt"

	"github.com/zaf/g711"

	"aicallswitch/internal/media"
)

// ErrInvalidLength is returned when 16-bit PCM input has an odd byte length.
var ErrInvalidLength = errors.New("codec: pcm16 input must have even length")

// EncodeMulaw encodes 16-bit little-endian PCM into µ-law bytes (half length).
func EncodeMulaw(pcm16 []byte) ([]byte, error) {
	if len(pcm16)%2 != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidLength, len(pcm16))
	}
	return g711.EncodeUlaw(pcm16), nil
}

// EncodeAlaw encodes 16-bit little-endian PCM into A-law bytes (half length).
func EncodeAlaw(pcm16 []byte) ([]byte, error) {
	if len(pcm16)%2 != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidLength, len(pcm16))
	}
	return g711.EncodeAlaw(pcm16), nil
}

// DecodeMulaw decodes µ-law bytes into 16-bit little-endian PCM (double length).
func DecodeMulaw(companded []byte) []byte {
	return g711.DecodeUlaw(companded)
}

// DecodeAlaw decodes A-law bytes into 16-bit little-endian PCM (double length).
func DecodeAlaw(companded []byte) []byte {
	return g711.DecodeAlaw(companded)
}

// Encode dispatches to EncodeMulaw or EncodeAlaw based on the codec.
func Encode(c media.Codec, pcm16 []byte) ([]byte, error) {
	switch c {
	case media.CodecAlaw:
		return EncodeAlaw(pcm16)
	default:
		return EncodeMulaw(pcm16)
	}
}

// Decode dispatches to DecodeMulaw or DecodeAlaw based on the codec.
func Decode(c media.Codec, companded []byte) []byte {
	if c == media.CodecAlaw {
		return DecodeAlaw(companded)
	}
	return DecodeMulaw(companded)
}
