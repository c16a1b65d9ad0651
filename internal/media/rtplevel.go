package media

import (
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// WatchTrack pumps inbound RTP from one remote audio track and feeds
// the meter from the ssrc-audio-level header extension. It returns when
// the track errors out, which happens when the peer transport closes.
// Run it on its own goroutine.
func WatchTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver, meter *Meter) {
	extID := audioLevelExtensionID(receiver)
	if extID == 0 {
		log.Debug().Str("module", "media").Msg("audio-level extension not negotiated")
	}
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if extID == 0 {
			continue
		}
		payload := pkt.GetExtension(uint8(extID))
		if payload == nil {
			continue
		}
		var lvl rtp.AudioLevelExtension
		if err := lvl.Unmarshal(payload); err != nil {
			continue
		}
		meter.ObserveLevel(lvl.Level, lvl.Voice)
	}
}

func audioLevelExtensionID(receiver *webrtc.RTPReceiver) int {
	if receiver == nil {
		return 0
	}
	for _, ext := range receiver.GetParameters().HeaderExtensions {
		if ext.URI == sdp.AudioLevelURI {
			return ext.ID
		}
	}
	return 0
}
