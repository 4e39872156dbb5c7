package langid

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// FormatName identifies aryad model files.
	FormatName = "aryad/gmm"
	// FormatVersion is the model file version written by Encode.
	FormatVersion = 1
	// DefaultExtension is the file extension model files carry.
	DefaultExtension = ".gmm"

	kindGMM = "gmm"
)

// modelFile is the on-disk msgpack document. A decoder refuses anything that
// does not declare itself as a Gaussian mixture model of a known version.
type modelFile struct {
	Format         string      `msgpack:"format"`
	Version        int         `msgpack:"version"`
	Kind           string      `msgpack:"kind"`
	CovarianceType string      `msgpack:"covariance_type"`
	NFeatures      int         `msgpack:"n_features"`
	Weights        []float64   `msgpack:"weights"`
	Means          [][]float64 `msgpack:"means"`
	Covariances    [][]float64 `msgpack:"covariances"`
}

// Encode writes m as a model file.
func Encode(w io.Writer, m *Model) error {
	doc := modelFile{
		Format:         FormatName,
		Version:        FormatVersion,
		Kind:           kindGMM,
		CovarianceType: string(m.covType),
		NFeatures:      m.Dim(),
		Weights:        m.weights,
		Means:          m.means,
		Covariances:    m.covars,
	}
	if err := msgpack.NewEncoder(w).Encode(&doc); err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}
	return nil
}

// Decode reads a model file. Any structural problem is reported as
// ErrInvalidModel.
func Decode(r io.Reader) (*Model, error) {
	var doc modelFile
	if err := msgpack.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if doc.Format != FormatName {
		return nil, fmt.Errorf("%w: format %q, want %q", ErrInvalidModel, doc.Format, FormatName)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidModel, doc.Version)
	}
	if doc.Kind != kindGMM {
		return nil, fmt.Errorf("%w: kind %q is not scorable", ErrInvalidModel, doc.Kind)
	}
	m, err := NewModel(CovarianceType(doc.CovarianceType), doc.Weights, doc.Means, doc.Covariances)
	if err != nil {
		return nil, err
	}
	if doc.NFeatures != 0 && doc.NFeatures != m.Dim() {
		return nil, fmt.Errorf("%w: header declares %d features, means have %d", ErrInvalidModel, doc.NFeatures, m.Dim())
	}
	return m, nil
}

// LoadFile decodes the model file at path.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// SaveFile writes m to path, replacing it atomically.
func SaveFile(path string, m *Model) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, m); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming model file: %w", err)
	}
	return nil
}
