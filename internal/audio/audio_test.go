package audio

import (
	"bytes"
	"math"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderLifecycle(t *testing.T) {
	r := NewRecorder(16000, 1)
	assert.False(t, r.Recording())

	r.Write([]float32{0.5}) // dropped, not recording
	_, err := r.Stop()
	require.ErrorIs(t, err, ErrNotRecording)

	r.Start()
	assert.True(t, r.Recording())
	r.Write([]float32{0.1, 0.2})
	r.Write([]float32{0.3})
	assert.Greater(t, r.Level(), 0.0)

	rec, err := r.Stop()
	require.NoError(t, err)
	assert.False(t, r.Recording())
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, rec.Data)
	assert.Equal(t, 16000, rec.SampleRate)
	assert.Same(t, rec, r.Last())
	assert.Zero(t, r.Level())

	// A new capture starts from scratch and does not alias the old one.
	r.Start()
	r.Write([]float32{0.9})
	rec2, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.9}, rec2.Data)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, rec.Data)
}

func TestLevel(t *testing.T) {
	assert.Zero(t, Level(nil))
	assert.Zero(t, Level([]float32{0, 0, 0}))

	// Constant 0.01 → rms 0.01 → sqrt(0.15).
	assert.InDelta(t, math.Sqrt(0.15), Level([]float32{0.01, -0.01, 0.01}), 1e-6)

	// Loud input saturates.
	assert.Equal(t, 1.0, Level([]float32{0.9, -0.9}))
}

func TestRecordingSamplesDownmix(t *testing.T) {
	rec := &Recording{Data: []float32{1, 0, 0.5, 0.5, -1, 1}, SampleRate: 8000, Channels: 2}
	assert.Equal(t, []float64{0.5, 0.5, 0}, rec.Samples())
	assert.InDelta(t, 3.0/8000, rec.Duration(), 1e-12)
}

func TestRecordingWAV(t *testing.T) {
	rec := &Recording{Data: []float32{0, 0.5, -0.5, 2}, SampleRate: 16000, Channels: 1}
	data, err := rec.WAV()
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("RIFF")))

	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 16000, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, []int{0, 16384, -16384, 32767}, buf.Data)

	_, err = (&Recording{SampleRate: 16000, Channels: 1}).WAV()
	require.ErrorIs(t, err, ErrEmptyRecording)
}

func TestPCMToInts(t *testing.T) {
	got, err := PCMToInts([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, -1, -32768}, got)

	got, err = PCMToInts([]byte{0x80, 0x00, 0xff}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, -128, 127}, got)

	_, err = PCMToInts([]byte{0}, 5)
	require.Error(t, err)
}

func TestDecodeClip(t *testing.T) {
	rec := &Recording{Data: []float32{0, 0.5, -0.5}, SampleRate: 22050, Channels: 1}
	data, err := rec.WAV()
	require.NoError(t, err)

	clip, err := DecodeClip(data)
	require.NoError(t, err)
	assert.Equal(t, 22050, clip.SampleRate)
	require.Len(t, clip.Frames, 3)
	for _, f := range clip.Frames {
		assert.Equal(t, f[0], f[1])
	}
	assert.InDelta(t, 0.5, clip.Frames[1][0], 1e-3)
	assert.InDelta(t, -0.5, clip.Frames[2][0], 1e-3)

	_, err = DecodeClip([]byte("not a wav"))
	require.Error(t, err)
}
