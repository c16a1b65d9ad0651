// Package media is the boundary to local audio capture and the
// speech-activity meters. Nothing here is correctness-critical for the
// negotiation state machine; it is all best-effort indication.
package media

import "github.com/pion/webrtc/v4"

// Source is one local audio source attached to a call. The concrete
// implementation captures the microphone; tests substitute a fake.
type Source interface {
	// Track is what gets attached to the peer transport.
	Track() webrtc.TrackLocal
	// SetEnabled gates the outgoing audio. Disabled means silence on
	// the wire; capture itself keeps running.
	SetEnabled(enabled bool)
	Enabled() bool
	// Meter reports local speech activity.
	Meter() *Meter
	// Stop releases the capture device. The source is unusable after.
	Stop()
}
