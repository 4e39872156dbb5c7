package langid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/nadzzz/aryad/internal/observe"
)

// DuplicatePolicy decides what happens when two model files map to the same
// language label.
type DuplicatePolicy string

const (
	// DuplicateReject keeps the first model loaded for a label and skips the rest.
	DuplicateReject DuplicatePolicy = "reject"
	// DuplicateOverride replaces the earlier model with the later one.
	DuplicateOverride DuplicatePolicy = "override"
)

// IsValid reports whether p is a known policy.
func (p DuplicatePolicy) IsValid() bool {
	return p == DuplicateReject || p == DuplicateOverride
}

// ErrDuplicateLabel is recorded for a model file skipped under DuplicateReject.
var ErrDuplicateLabel = errors.New("langid: duplicate language label")

// LoadOptions configures Load.
type LoadOptions struct {
	// Extension selects model files (case-insensitive). Default ".gmm".
	Extension string

	// Duplicates decides label collisions. Default DuplicateReject.
	Duplicates DuplicatePolicy

	// Decode turns a file into a scorer. Default decodes aryad model files.
	Decode func(r io.Reader) (Scorer, error)

	// Metrics receives load counters. Default observe.Default().
	Metrics *observe.Metrics
}

func (o LoadOptions) withDefaults() LoadOptions {
	if o.Extension == "" {
		o.Extension = DefaultExtension
	}
	if !strings.HasPrefix(o.Extension, ".") {
		o.Extension = "." + o.Extension
	}
	if !o.Duplicates.IsValid() {
		o.Duplicates = DuplicateReject
	}
	if o.Decode == nil {
		o.Decode = func(r io.Reader) (Scorer, error) { return Decode(r) }
	}
	if o.Metrics == nil {
		o.Metrics = observe.Default()
	}
	return o
}

// LoadIssue records a model file that was skipped during Load.
type LoadIssue struct {
	File string
	Err  error
}

// Store maps language labels to scorers. It is read-only after construction
// and may be shared by concurrent detectors.
type Store struct {
	models map[string]Scorer
	labels []string
	issues []LoadIssue
}

// NewStore builds a store from an explicit label -> scorer map.
func NewStore(models map[string]Scorer) *Store {
	s := &Store{models: make(map[string]Scorer, len(models))}
	for label, m := range models {
		if m == nil {
			continue
		}
		s.models[label] = m
	}
	s.sortLabels()
	return s
}

// Load reads every model file in dirs. It never fails as a whole: missing
// directories and unreadable or invalid files are logged, recorded in
// Issues and skipped, leaving a store with fewer (possibly zero) languages.
func Load(opts LoadOptions, dirs ...string) *Store {
	s := &Store{models: make(map[string]Scorer)}
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			if err == nil {
				err = fmt.Errorf("%s is not a directory", dir)
			}
			slog.Error("language model directory unavailable", "dir", dir, "error", err)
			s.issues = append(s.issues, LoadIssue{File: dir, Err: err})
			continue
		}
		s.loadFS(os.DirFS(dir), dir, opts.withDefaults())
	}
	s.finish()
	return s
}

// LoadFS reads every model file in the root of fsys.
func LoadFS(fsys fs.FS, opts LoadOptions) *Store {
	s := &Store{models: make(map[string]Scorer)}
	s.loadFS(fsys, ".", opts.withDefaults())
	s.finish()
	return s
}

func (s *Store) loadFS(fsys fs.FS, name string, opts LoadOptions) {
	ctx := context.Background()

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		slog.Error("reading language model directory", "dir", name, "error", err)
		s.issues = append(s.issues, LoadIssue{File: name, Err: err})
		return
	}

	// fs.ReadDir returns entries sorted by file name.
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()
		ext := path.Ext(file)
		if !strings.EqualFold(ext, opts.Extension) {
			continue
		}
		label := strings.TrimSuffix(file, ext)
		fullPath := path.Join(name, file)

		model, err := decodeFSFile(fsys, file, opts.Decode)
		if err != nil {
			slog.Warn("invalid language model file", "file", fullPath, "error", err)
			s.issues = append(s.issues, LoadIssue{File: fullPath, Err: err})
			opts.Metrics.RecordModelLoad(ctx, "invalid")
			continue
		}

		if _, exists := s.models[label]; exists {
			if opts.Duplicates == DuplicateReject {
				err := fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
				slog.Warn("duplicate language model skipped", "file", fullPath, "language", label)
				s.issues = append(s.issues, LoadIssue{File: fullPath, Err: err})
				opts.Metrics.RecordModelLoad(ctx, "duplicate")
				continue
			}
			slog.Warn("duplicate language model overrides earlier one", "file", fullPath, "language", label)
		}

		s.models[label] = model
		opts.Metrics.RecordModelLoad(ctx, "loaded")
		slog.Info("language model loaded", "language", label, "file", fullPath)
	}
}

func decodeFSFile(fsys fs.FS, name string, decode func(io.Reader) (Scorer, error)) (Scorer, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := decode(f)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: decoder returned no model", ErrInvalidModel)
	}
	return m, nil
}

func (s *Store) finish() {
	s.sortLabels()
	if len(s.models) == 0 {
		slog.Warn("no language models loaded")
	}
}

func (s *Store) sortLabels() {
	s.labels = make([]string, 0, len(s.models))
	for label := range s.models {
		s.labels = append(s.labels, label)
	}
	sort.Strings(s.labels)
}

// Len returns the number of loaded languages.
func (s *Store) Len() int { return len(s.models) }

// Labels returns the language labels in sorted order.
func (s *Store) Labels() []string {
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

// Get returns the scorer for label.
func (s *Store) Get(label string) (Scorer, bool) {
	m, ok := s.models[label]
	return m, ok
}

// Issues returns the files skipped while loading.
func (s *Store) Issues() []LoadIssue {
	out := make([]LoadIssue, len(s.issues))
	copy(out, s.issues)
	return out
}
