package codec

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tone440 generates a 440Hz tone at the given amplitude (0..1) as 16-bit PCM.
func tone440(t *testing.T, sampleRate int, amplitude float64, n int) []byte {
	t.Helper()
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
		s := int16(v * 32767)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}

func TestEncodeMulaw_OddLengthFails(t *testing.T) {
	_, err := EncodeMulaw([]byte{0x01, 0x02, 0x03})
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestEncodeAlaw_OddLengthFails(t *testing.T) {
	_, err := EncodeAlaw([]byte{0x01})
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestMulaw_EncodeHalvesLength(t *testing.T) {
	pcm := tone440(t, 8000, 0.5, 160)
	enc, err := EncodeMulaw(pcm)
	require.NoError(t, err)
	assert.Equal(t, len(pcm)/2, len(enc))
}

func TestMulaw_DecodeDoublesLength(t *testing.T) {
	pcm := tone440(t, 8000, 0.5, 160)
	enc, err := EncodeMulaw(pcm)
	require.NoError(t, err)
	dec := DecodeMulaw(enc)
	assert.Equal(t, len(enc)*2, len(dec))
}

// TestMulaw_RoundTripPreservesEnergy checks that a 440Hz tone at 0.5
// amplitude retains RMS energy within +/-3dB after a G.711 round trip.
func TestMulaw_RoundTripPreservesEnergy(t *testing.T) {
	pcm := tone440(t, 8000, 0.5, 800)
	enc, err := EncodeMulaw(pcm)
	require.NoError(t, err)
	dec := DecodeMulaw(enc)

	before := rms(pcm)
	after := rms(dec)
	require.Greater(t, before, 0.0)

	ratioDb := 20 * math.Log10(after/before)
	assert.InDelta(t, 0, ratioDb, 3.0)
}

func TestAlaw_RoundTripPreservesEnergy(t *testing.T) {
	pcm := tone440(t, 8000, 0.5, 800)
	enc, err := EncodeAlaw(pcm)
	require.NoError(t, err)
	dec := DecodeAlaw(enc)

	before := rms(pcm)
	after := rms(dec)
	ratioDb := 20 * math.Log10(after/before)
	assert.InDelta(t, 0, ratioDb, 3.0)
}
