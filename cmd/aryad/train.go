package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/aryad/internal/langid"
)

// trainJob is one LABEL=DIR argument.
type trainJob struct {
	label string
	dir   string
}

func parseTrainArgs(args []string) ([]trainJob, error) {
	seen := make(map[string]bool, len(args))
	jobs := make([]trainJob, 0, len(args))
	for _, arg := range args {
		label, dir, ok := strings.Cut(arg, "=")
		if !ok || label == "" || dir == "" {
			return nil, fmt.Errorf("argument %q is not LABEL=DIR", arg)
		}
		if seen[label] {
			return nil, fmt.Errorf("label %q given twice", label)
		}
		seen[label] = true
		jobs = append(jobs, trainJob{label: label, dir: dir})
	}
	return jobs, nil
}

func isAudioFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".mp3":
		return true
	}
	return false
}

func newTrainCmd(flags *rootFlags) *cobra.Command {
	var (
		out  string
		opts langid.TrainOptions
	)
	cmd := &cobra.Command{
		Use:   "train --out DIR LABEL=DIR...",
		Short: "Fit one language model per labelled audio directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			jobs, err := parseTrainArgs(args)
			if err != nil {
				return err
			}
			ext, err := newExtractor(cfg.LangID)
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.LangID.ModelsDir
			}
			if err := os.MkdirAll(out, 0o755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			suffix := cfg.LangID.Extension
			if suffix == "" {
				suffix = langid.DefaultExtension
			}

			paths := make([]string, len(jobs))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(runtime.NumCPU())
			for i, job := range jobs {
				g.Go(func() error {
					path := filepath.Join(out, job.label+suffix)
					if err := trainLanguage(ctx, ext, job, opts, path); err != nil {
						return fmt.Errorf("training %s: %w", job.label, err)
					}
					paths[i] = path
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output directory (default langid.models_dir)")
	cmd.Flags().IntVar(&opts.Components, "components", 16, "mixture components per language")
	cmd.Flags().IntVar(&opts.MaxIter, "max-iter", 100, "maximum EM iterations")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "initialisation seed")
	return cmd
}

// trainLanguage pools the MFCC frames of every audio file in job.dir and
// writes the fitted model to path. Unreadable files are skipped.
func trainLanguage(ctx context.Context, ext *langid.Extractor, job trainJob, opts langid.TrainOptions, path string) error {
	entries, err := os.ReadDir(job.dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isAudioFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var frames [][]float64
	used := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		features, err := ext.Extract(filepath.Join(job.dir, name))
		if err != nil {
			slog.Warn("skipping training file", "language", job.label, "file", name, "error", err)
			continue
		}
		frames = append(frames, features...)
		used++
	}
	if used == 0 {
		return fmt.Errorf("no usable audio files in %s", job.dir)
	}

	model, err := langid.Train(frames, opts)
	if err != nil {
		return err
	}
	if err := langid.SaveFile(path, model); err != nil {
		return err
	}
	slog.Info("language model trained", "language", job.label, "files", used, "frames", len(frames), "components", model.Components(), "path", path)
	return nil
}
