package rtc_test

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/duocall/duocall/internal/adapters/rtc"
	"github.com/duocall/duocall/internal/core"
)

// Handler wiring happens while pion is already free to fire callbacks
// from its own goroutines; the setters must be safe against that.
func TestHandlerWiringConcurrentWithGathering(t *testing.T) {
	c, err := rtc.New(rtc.DefaultConfig())
	require.NoError(t, err)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			c.OnICECandidate(func(webrtc.ICECandidateInit) {})
			c.OnConnectionState(func(webrtc.PeerConnectionState) {})
			c.OnRemoteTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {})
			c.OnAuxChannel(func(core.AuxChannel) {})
		}
	}()

	// The data channel gives the offer an m-line, so applying the local
	// description starts candidate gathering while the setters spin.
	_, err = c.CreateAuxChannel()
	require.NoError(t, err)
	_, err = c.CreateOffer()
	require.NoError(t, err)
	<-done
}

func TestCloseIdempotent(t *testing.T) {
	c, err := rtc.New(rtc.DefaultConfig())
	require.NoError(t, err)
	c.Close()
	c.Close()
}
