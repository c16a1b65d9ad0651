package media_test

import (
	"testing"

	"github.com/pion/mediadevices/pkg/wave"
	"github.com/stretchr/testify/assert"

	"github.com/duocall/duocall/internal/media"
)

func pcmChunk(amplitude int16) *wave.Int16Interleaved {
	chunk := wave.NewInt16Interleaved(wave.ChunkInfo{Len: 480, Channels: 1, SamplingRate: 48000})
	for i := 0; i < 480; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		chunk.Set(i, 0, wave.Int16Sample(v))
	}
	return chunk
}

func TestMeterPCM(t *testing.T) {
	m := media.NewMeter()
	assert.False(t, m.Speaking(), "fresh meter must be silent")

	m.ObservePCM(pcmChunk(0))
	assert.False(t, m.Speaking(), "silence must not trip the flag")

	m.ObservePCM(pcmChunk(16000))
	assert.True(t, m.Speaking())
}

func TestMeterLevel(t *testing.T) {
	m := media.NewMeter()

	// 100 -dBov is quieter than the cutoff.
	m.ObserveLevel(100, false)
	assert.False(t, m.Speaking())

	// The voice-activity bit wins regardless of level.
	m.ObserveLevel(100, true)
	assert.True(t, m.Speaking())

	m.Reset()
	assert.False(t, m.Speaking())

	m.ObserveLevel(30, false)
	assert.True(t, m.Speaking())
}

func TestMeterReset(t *testing.T) {
	m := media.NewMeter()
	m.ObservePCM(pcmChunk(16000))
	assert.True(t, m.Speaking())

	m.Reset()
	assert.False(t, m.Speaking())
}
