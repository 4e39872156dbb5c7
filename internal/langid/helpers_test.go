package langid

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// writeWAV writes interleaved samples in [-1, 1] as 16-bit PCM.
func writeWAV(t *testing.T, path string, samples []float64, sampleRate, channels int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Round(s * 32767))
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func tone(freq float64, sampleRate int, seconds float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func noise(seed uint64, n int) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64() - 0.5
	}
	return out
}

// unitModel returns a one-component diagonal model centred on mean with
// unit variance.
func unitModel(t *testing.T, mean []float64) *Model {
	t.Helper()
	vars := make([]float64, len(mean))
	for i := range vars {
		vars[i] = 1
	}
	m, err := NewModel(CovDiag, []float64{1}, [][]float64{mean}, [][]float64{vars})
	require.NoError(t, err)
	return m
}

func saveModel(t *testing.T, dir, name string, m *Model) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, SaveFile(p, m))
	return p
}
