package media

import (
	"errors"
	"sync/atomic"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the capture adapter
	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoAudioDevice = errors.New("no audio input device")

// Microphone captures the default audio input and encodes it as opus.
// Mute is implemented as a gate in the sample pipeline rather than by
// pausing capture, so unmuting is instant.
type Microphone struct {
	stream  mediadevices.MediaStream
	track   *mediadevices.AudioTrack
	meter   *Meter
	enabled atomic.Bool
}

// NewMicrophone acquires the default microphone. A nil error means the
// device is open and the track is ready to attach. Acquisition failure
// is the caller's media-permission error: the call flow must not start.
func NewMicrophone() (*Microphone, error) {
	params, err := opus.NewParams()
	if err != nil {
		return nil, err
	}
	selector := mediadevices.NewCodecSelector(mediadevices.WithAudioEncoders(&params))

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {},
		Codec: selector,
	})
	if err != nil {
		return nil, err
	}
	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, ErrNoAudioDevice
	}
	track, ok := tracks[0].(*mediadevices.AudioTrack)
	if !ok {
		return nil, ErrNoAudioDevice
	}

	m := &Microphone{
		stream: stream,
		track:  track,
		meter:  NewMeter(),
	}
	m.enabled.Store(true)
	track.Transform(m.gate)
	log.Info().Str("module", "media").Str("track_id", track.ID()).Msg("microphone acquired")
	return m, nil
}

// gate observes each chunk for the level meter and zeroes it while
// muted.
func (m *Microphone) gate(r audio.Reader) audio.Reader {
	return audio.ReaderFunc(func() (wave.Audio, func(), error) {
		chunk, release, err := r.Read()
		if err != nil {
			return nil, release, err
		}
		if !m.enabled.Load() {
			silence(chunk)
			return chunk, release, nil
		}
		m.meter.ObservePCM(chunk)
		return chunk, release, nil
	})
}

func silence(chunk wave.Audio) {
	e, ok := chunk.(wave.EditableAudio)
	if !ok {
		return
	}
	info := chunk.ChunkInfo()
	for i := 0; i < info.Len; i++ {
		for ch := 0; ch < info.Channels; ch++ {
			e.Set(i, ch, wave.Int16Sample(0))
		}
	}
}

func (m *Microphone) Track() webrtc.TrackLocal { return m.track }

func (m *Microphone) SetEnabled(enabled bool) { m.enabled.Store(enabled) }

func (m *Microphone) Enabled() bool { return m.enabled.Load() }

func (m *Microphone) Meter() *Meter { return m.meter }

func (m *Microphone) Stop() {
	for _, t := range m.stream.GetTracks() {
		if err := t.Close(); err != nil {
			log.Error().Err(err).Str("module", "media").Msg("track close")
		}
	}
}
