package scenario

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

const sdpWithPCMU = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 49170 RTP/AVP 0 8\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"a=rtpmap:8 PCMA/8000\r\n"

const sdpWithoutG711 = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 49170 RTP/AVP 111\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

func TestAcceptableOffer_NilOrEmptyIsAcceptable(t *testing.T) {
	assert.NoError(t, acceptableOffer(nil))
	assert.NoError(t, acceptableOffer(&webrtc.SessionDescription{}))
}

func TestAcceptableOffer_AdvertisesPCMUOrPCMA(t *testing.T) {
	assert.NoError(t, acceptableOffer(&webrtc.SessionDescription{SDP: sdpWithPCMU}))
}

func TestAcceptableOffer_RejectsOpusOnlyOffer(t *testing.T) {
	err := acceptableOffer(&webrtc.SessionDescription{SDP: sdpWithoutG711})
	assert.ErrorIs(t, err, ErrOfferNotAcceptable)
}
