package media

import (
	"math"
	"sync"
	"time"

	"github.com/pion/mediadevices/pkg/wave"
)

const (
	// DefaultRMSThreshold is the normalized signal energy above which a
	// PCM chunk counts as speech.
	DefaultRMSThreshold = 0.06
	// DefaultLevelThreshold is the ssrc-audio-level cutoff in -dBov
	// (0 is loudest, 127 is silence); anything louder counts as speech.
	DefaultLevelThreshold = 55
	// speakingHold keeps the flag up between chunks so it does not
	// flicker at frame rate.
	speakingHold = 300 * time.Millisecond
)

// Meter turns a stream of audio observations into a boolean speaking
// flag. Observations arrive from the capture pipeline (PCM chunks) or
// from inbound RTP (audio-level header extension); either side feeds
// the same flag.
type Meter struct {
	mu             sync.Mutex
	rmsThreshold   float64
	levelThreshold uint8
	lastActive     time.Time
}

func NewMeter() *Meter {
	return &Meter{
		rmsThreshold:   DefaultRMSThreshold,
		levelThreshold: DefaultLevelThreshold,
	}
}

// ObservePCM computes root-mean-square energy over one chunk and marks
// activity when it crosses the threshold.
func (m *Meter) ObservePCM(chunk wave.Audio) {
	info := chunk.ChunkInfo()
	if info.Len == 0 || info.Channels == 0 {
		return
	}
	var sum float64
	for i := 0; i < info.Len; i++ {
		for ch := 0; ch < info.Channels; ch++ {
			v := float64(chunk.At(i, ch).Int()) / float64(math.MaxInt64)
			sum += v * v
		}
	}
	rms := math.Sqrt(sum / float64(info.Len*info.Channels))
	if rms > m.rmsThreshold {
		m.markActive()
	}
}

// ObserveLevel consumes one RFC 6464 audio-level reading.
func (m *Meter) ObserveLevel(level uint8, voice bool) {
	if voice || level < m.levelThreshold {
		m.markActive()
	}
}

func (m *Meter) markActive() {
	m.mu.Lock()
	m.lastActive = time.Now()
	m.mu.Unlock()
}

// Speaking reports whether activity was observed within the hold
// window. Callers poll this on their own tick.
func (m *Meter) Speaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.lastActive.IsZero() && time.Since(m.lastActive) < speakingHold
}

// Reset drops any recorded activity, e.g. when the remote track goes
// away.
func (m *Meter) Reset() {
	m.mu.Lock()
	m.lastActive = time.Time{}
	m.mu.Unlock()
}
