package langid

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestEncodeDecode(t *testing.T) {
	m, err := NewModel(CovFull,
		[]float64{0.4, 0.6},
		[][]float64{{0, 1}, {2, 3}},
		[][]float64{{1, 0.2, 0.2, 1}, {2, 0, 0, 2}},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.CovarianceType(), got.CovarianceType())
	assert.Equal(t, m.Weights(), got.Weights())
	assert.Equal(t, m.Means(), got.Means())
	assert.Equal(t, m.Covariances(), got.Covariances())

	x := [][]float64{{1, 1}, {0, 2}}
	want, _ := m.Score(x)
	have, _ := got.Score(x)
	assert.InDelta(t, want, have, 1e-12)
}

func TestDecodeRejectsForeignDocuments(t *testing.T) {
	encode := func(v any) *bytes.Buffer {
		b, err := msgpack.Marshal(v)
		require.NoError(t, err)
		return bytes.NewBuffer(b)
	}
	valid := modelFile{
		Format:         FormatName,
		Version:        FormatVersion,
		Kind:           kindGMM,
		CovarianceType: string(CovDiag),
		NFeatures:      1,
		Weights:        []float64{1},
		Means:          [][]float64{{0}},
		Covariances:    [][]float64{{1}},
	}

	_, err := Decode(encode(valid))
	require.NoError(t, err)

	cases := map[string]func(*modelFile){
		"wrong format":     func(f *modelFile) { f.Format = "sklearn/pickle" },
		"future version":   func(f *modelFile) { f.Version = 99 },
		"not a gmm":        func(f *modelFile) { f.Kind = "kmeans" },
		"feature mismatch": func(f *modelFile) { f.NFeatures = 13 },
		"bad shape":        func(f *modelFile) { f.Covariances = [][]float64{{1, 1}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			doc := valid
			mutate(&doc)
			_, err := Decode(encode(doc))
			require.ErrorIs(t, err, ErrInvalidModel)
		})
	}

	t.Run("garbage", func(t *testing.T) {
		_, err := Decode(bytes.NewBufferString("\x80\x02csklearn.mixture\n"))
		require.ErrorIs(t, err, ErrInvalidModel)
	})
}

func TestSaveLoadFile(t *testing.T) {
	dir := t.TempDir()
	m := unitModel(t, []float64{1, 2, 3})
	p := saveModel(t, dir, "german.gmm", m)

	got, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, m.Means(), got.Means())

	// No temp files left behind.
	matches, err := filepath.Glob(filepath.Join(dir, ".model-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
