package scenario

import (
	"errors"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// ErrOfferNotAcceptable is returned when an SDP offer's audio media section
// advertises neither PCMU (payload type 0) nor PCMA (payload type 8).
var ErrOfferNotAcceptable = errors.New("scenario: offer does not advertise PCMU or PCMA")

// acceptableOffer parses offer's SDP body and checks that at least one audio
// media section advertises the PCMU or PCMA static payload type. A nil or
// empty offer is treated as acceptable (nothing to negotiate against yet).
func acceptableOffer(offer *webrtc.SessionDescription) error {
	if offer == nil || offer.SDP == "" {
		return nil
	}

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(offer.SDP)); err != nil {
		return errors.New("scenario: malformed SDP offer")
	}

	for _, md := range parsed.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		for _, pt := range md.MediaName.Formats {
			if pt == "0" || pt == "8" {
				return nil
			}
		}
	}
	return ErrOfferNotAcceptable
}
