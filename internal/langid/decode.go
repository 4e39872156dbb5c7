package langid

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep/mp3"
	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// Audio is a decoded mono clip.
type Audio struct {
	Samples    []float64 // normalised to [-1, 1]
	SampleRate int
}

// Duration returns the clip length in seconds.
func (a *Audio) Duration() float64 {
	if a.SampleRate == 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

// DecodeFile decodes a WAV or MP3 file into mono samples. The container is
// chosen from the file header, falling back to the extension.
func DecodeFile(path string) (*Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	a, err := DecodeAudio(f, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// DecodeAudio reads a WAV or MP3 stream. ext is a hint used when the header is
// not conclusive.
func DecodeAudio(r io.ReadSeeker, ext string) (*Audio, error) {
	head := make([]byte, 12)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty file", ErrDecode)
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	head = head[:n]
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var a *Audio
	switch {
	case bytes.HasPrefix(head, []byte("RIFF")):
		a, err = decodeWAV(r)
	case bytes.HasPrefix(head, []byte("ID3")), isMP3Sync(head), strings.EqualFold(ext, ".mp3"):
		a, err = decodeMP3(r)
	case strings.EqualFold(ext, ".wav"):
		a, err = decodeWAV(r)
	default:
		return nil, fmt.Errorf("%w: unsupported audio format", ErrDecode)
	}
	if err != nil {
		return nil, err
	}
	if len(a.Samples) == 0 {
		return nil, ErrEmptyAudio
	}
	return a, nil
}

func isMP3Sync(head []byte) bool {
	return len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0
}

func decodeWAV(r io.ReadSeeker) (*Audio, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrDecode)
	}
	if d.WavAudioFormat != 1 {
		return nil, fmt.Errorf("%w: WAV encoding %d is not PCM", ErrDecode, d.WavAudioFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: missing WAV format", ErrDecode)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(d.BitDepth)
	}
	var scale float64
	switch bitDepth {
	case 8:
		scale = 128
	case 16, 24, 32:
		scale = float64(int64(1) << (bitDepth - 1))
	default:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrDecode, bitDepth)
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			v := float64(buf.Data[i*channels+c])
			if bitDepth == 8 {
				// 8-bit WAV is unsigned.
				v -= 128
			}
			sum += v
		}
		samples[i] = sum / float64(channels) / scale
	}
	return &Audio{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

func decodeMP3(r io.Reader) (*Audio, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bufio.NewReader(r)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer streamer.Close()

	var samples []float64
	buf := make([][2]float64, 4096)
	for {
		n, ok := streamer.Stream(buf)
		for _, s := range buf[:n] {
			samples = append(samples, (s[0]+s[1])/2)
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &Audio{Samples: samples, SampleRate: int(format.SampleRate)}, nil
}

// Resample converts mono samples from one rate to another.
func Resample(samples []float64, from, to int) ([]float64, error) {
	if from == to || len(samples) == 0 {
		return samples, nil
	}
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rates %d -> %d", ErrDecode, from, to)
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("creating resampler: %w", err)
	}
	out, err := rs.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resampling %d -> %d: %w", from, to, err)
	}
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("resampling %d -> %d: %w", from, to, err)
	}
	out = append(out, tail...)

	// Output length tracks input duration exactly; the filter tail may
	// overshoot by a few samples.
	want := int((int64(len(samples))*int64(to) + int64(from)/2) / int64(from))
	if len(out) > want {
		out = out[:want]
	}
	for len(out) < want {
		out = append(out, 0)
	}
	return out, nil
}
