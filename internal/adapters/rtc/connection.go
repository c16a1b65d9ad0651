// Package rtc implements core.PeerTransport on top of a pion
// PeerConnection.
package rtc

import (
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/duocall/duocall/internal/core"
)

const DefaultSTUNServer = "stun:stun.l.google.com:19302"

type Config struct {
	STUNServer string
}

func DefaultConfig() Config {
	return Config{STUNServer: DefaultSTUNServer}
}

type PeerConnection struct {
	pc   *webrtc.PeerConnection
	once sync.Once

	// mu guards the handler fields: pion fires its callbacks from its
	// own goroutines, racing the setters called during wiring.
	mu      sync.RWMutex
	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onAux   func(core.AuxChannel)
}

// New builds a PeerConnection with the default codecs plus the
// ssrc-audio-level header extension, which the activity meter reads
// from inbound RTP.
func New(cfg Config) (*PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	if err := m.RegisterHeaderExtension(
		webrtc.RTPHeaderExtensionCapability{URI: sdp.AudioLevelURI},
		webrtc.RTPCodecTypeAudio,
	); err != nil {
		return nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{cfg.STUNServer}}},
	})
	if err != nil {
		return nil, err
	}

	c := &PeerConnection{pc: pc}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		c.mu.RLock()
		fn := c.onICE
		c.mu.RUnlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("peer state")
		c.mu.RLock()
		fn := c.onState
		c.mu.RUnlock()
		if fn != nil {
			fn(s)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")
		c.mu.RLock()
		fn := c.onTrack
		c.mu.RUnlock()
		if fn != nil {
			fn(track, receiver)
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Info().Str("module", "rtc").Str("label", dc.Label()).Msg("remote data channel")
		c.mu.RLock()
		fn := c.onAux
		c.mu.RUnlock()
		if fn != nil {
			fn(&auxChannel{dc: dc})
		}
	})

	return c, nil
}

func (c *PeerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *PeerConnection) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *PeerConnection) AcceptAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *PeerConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *PeerConnection) AddLocalTrack(track webrtc.TrackLocal) error {
	_, err := c.pc.AddTrack(track)
	return err
}

func (c *PeerConnection) CreateAuxChannel() (core.AuxChannel, error) {
	dc, err := c.pc.CreateDataChannel("chat", nil)
	if err != nil {
		return nil, err
	}
	return &auxChannel{dc: dc}, nil
}

func (c *PeerConnection) OnAuxChannel(fn func(core.AuxChannel)) {
	c.mu.Lock()
	c.onAux = fn
	c.mu.Unlock()
}

func (c *PeerConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *PeerConnection) OnConnectionState(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *PeerConnection) OnRemoteTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *PeerConnection) Close() {
	c.once.Do(func() {
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("close error")
		}
	})
}

// auxChannel adapts a pion DataChannel to core.AuxChannel.
type auxChannel struct {
	dc *webrtc.DataChannel
}

func (a *auxChannel) Send(data []byte) error { return a.dc.Send(data) }

func (a *auxChannel) OnOpen(fn func()) { a.dc.OnOpen(fn) }

func (a *auxChannel) OnClose(fn func()) { a.dc.OnClose(fn) }

func (a *auxChannel) OnMessage(fn func([]byte)) {
	a.dc.OnMessage(func(m webrtc.DataChannelMessage) { fn(m.Data) })
}

func (a *auxChannel) Close() error { return a.dc.Close() }
