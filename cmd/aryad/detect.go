package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nadzzz/aryad/internal/lang"
	"github.com/nadzzz/aryad/internal/langid"
	"github.com/nadzzz/aryad/internal/observe"
)

type detection struct {
	File     string         `json:"file"`
	Label    string         `json:"label,omitempty"`
	Language string         `json:"language,omitempty"`
	Scores   []langid.Score `json:"scores,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func newDetectCmd(flags *rootFlags) *cobra.Command {
	var (
		modelsDirs []string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "detect <audio>...",
		Short: "Identify the language spoken in audio files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			detector, err := newDetector(cfg.LangID, observe.Default(), modelsDirs...)
			if err != nil {
				return err
			}
			if detector.Store().Len() == 0 {
				return langid.ErrNoModels
			}

			results := make([]detection, 0, len(args))
			failed := 0
			for _, path := range args {
				d := detection{File: path}
				res, err := detector.Detect(cmd.Context(), path)
				if err != nil {
					d.Error = err.Error()
					failed++
				} else {
					d.Label = res.Label
					d.Language = lang.Normalize(res.Label)
					d.Scores = res.Scores
				}
				results = append(results, d)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, d := range results {
					if d.Error != "" {
						fmt.Fprintf(tw, "%s\terror: %s\n", d.File, d.Error)
						continue
					}
					fmt.Fprintf(tw, "%s\t%s\n", d.File, d.Label)
					for _, s := range d.Scores {
						fmt.Fprintf(tw, "\t  %s\t%.3f\n", s.Label, s.LogLikelihood)
					}
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be classified", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&modelsDirs, "models", nil, "model directories (default langid.models_dir)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}
