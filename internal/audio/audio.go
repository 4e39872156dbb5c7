// Package audio captures microphone input into memory and encodes it as WAV.
//
// The Recorder is transport-agnostic: the mic subpackage feeds it from a
// PortAudio input stream, tests feed it directly.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	beepwav "github.com/faiface/beep/wav"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotRecording is returned by Stop when Start was never called.
var ErrNotRecording = errors.New("audio: recorder is not running")

// ErrEmptyRecording is returned when a recording holds no samples.
var ErrEmptyRecording = errors.New("audio: recording is empty")

// levelGain scales RMS before the square root so quiet speech still moves
// the meter.
const levelGain = 15

// Recording is a finished capture of interleaved float32 samples in [-1, 1].
type Recording struct {
	Data       []float32
	SampleRate int
	Channels   int
}

// Duration returns the recording length in seconds.
func (r *Recording) Duration() float64 {
	if r.SampleRate == 0 || r.Channels == 0 {
		return 0
	}
	return float64(len(r.Data)/r.Channels) / float64(r.SampleRate)
}

// Samples returns the recording downmixed to mono float64.
func (r *Recording) Samples() []float64 {
	ch := max(r.Channels, 1)
	out := make([]float64, len(r.Data)/ch)
	for i := range out {
		var sum float64
		for c := range ch {
			sum += float64(r.Data[i*ch+c])
		}
		out[i] = sum / float64(ch)
	}
	return out
}

// WAV encodes the recording as 16-bit PCM WAV.
func (r *Recording) WAV() ([]byte, error) {
	if len(r.Data) == 0 {
		return nil, ErrEmptyRecording
	}
	pcm := make([]int, len(r.Data))
	for i, s := range r.Data {
		pcm[i] = int(math.Round(float64(clamp(s)) * math.MaxInt16))
	}
	return EncodeWAV(pcm, r.SampleRate, r.Channels, 16)
}

// EncodeWAV wraps integer PCM samples in a WAV container.
//
// The go-audio encoder needs an io.WriteSeeker to patch the RIFF header, so
// the file is written to a temporary file which is removed afterwards.
func EncodeWAV(pcm []int, sampleRate, channels, bitDepth int) ([]byte, error) {
	f, err := os.CreateTemp("", "aryad-*.wav")
	if err != nil {
		return nil, fmt.Errorf("creating temp wav: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           pcm,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalising wav: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding temp wav: %w", err)
	}
	return io.ReadAll(f)
}

// PCMToInts converts little-endian signed PCM bytes of the given width
// (1, 2, 3 or 4 bytes per sample) into integers.
func PCMToInts(pcm []byte, width int) ([]int, error) {
	if width < 1 || width > 4 {
		return nil, fmt.Errorf("audio: unsupported sample width %d", width)
	}
	out := make([]int, len(pcm)/width)
	for i := range out {
		b := pcm[i*width : (i+1)*width]
		if width == 1 {
			// 8-bit PCM is unsigned.
			out[i] = int(b[0]) - 128
			continue
		}
		var v int32
		for j := width - 1; j >= 0; j-- {
			v = v<<8 | int32(b[j])
		}
		shift := 32 - 8*width
		out[i] = int(v << shift >> shift)
	}
	return out, nil
}

// Recorder accumulates captured chunks between Start and Stop.
type Recorder struct {
	sampleRate int
	channels   int

	mu        sync.Mutex
	recording bool
	data      []float32
	level     float64
	last      *Recording
}

// NewRecorder creates a recorder for the given stream format.
func NewRecorder(sampleRate, channels int) *Recorder {
	return &Recorder{sampleRate: sampleRate, channels: max(channels, 1)}
}

// SampleRate returns the capture rate in Hz.
func (r *Recorder) SampleRate() int { return r.sampleRate }

// Channels returns the number of interleaved channels.
func (r *Recorder) Channels() int { return r.channels }

// Start discards any buffered samples and begins a new capture.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = true
	r.data = r.data[:0]
	r.level = 0
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Write appends a chunk of interleaved samples and updates the level meter.
// Chunks written while the recorder is stopped are dropped.
func (r *Recorder) Write(chunk []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.data = append(r.data, chunk...)
	r.level = Level(chunk)
}

// Level returns the meter value of the most recent chunk, in [0, 1].
func (r *Recorder) Level() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

// Stop ends the capture and returns what was recorded.
func (r *Recorder) Stop() (*Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil, ErrNotRecording
	}
	r.recording = false
	r.level = 0

	data := make([]float32, len(r.data))
	copy(data, r.data)
	r.last = &Recording{Data: data, SampleRate: r.sampleRate, Channels: r.channels}
	return r.last, nil
}

// Last returns the most recent finished recording, or nil.
func (r *Recorder) Last() *Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Level maps a chunk's RMS onto a 0..1 meter: min(1, sqrt(rms*15)).
func Level(chunk []float32) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, s := range chunk {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(chunk)))
	return math.Min(1, math.Sqrt(rms*levelGain))
}

func clamp(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

// Clip is decoded stereo audio ready for playback.
type Clip struct {
	Frames     [][2]float64
	SampleRate int
}

// DecodeClip decodes a WAV file into stereo frames. Mono input is duplicated
// on both channels.
func DecodeClip(data []byte) (*Clip, error) {
	streamer, format, err := beepwav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	defer streamer.Close()

	frames := make([][2]float64, 0, streamer.Len())
	buf := make([][2]float64, 1024)
	for {
		n, ok := streamer.Stream(buf)
		frames = append(frames, buf[:n]...)
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	return &Clip{Frames: frames, SampleRate: int(format.SampleRate)}, nil
}
