package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nadzzz/aryad/internal/config"
)

type rootFlags struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "aryad",
		Short: "Voice-first chat assistant daemon",
		Long: `aryad answers typed or spoken messages through an LLM.

Spoken input goes through language identification (GMM over MFCC features),
speech recognition, the agent (chat or interpreter mode) and text-to-speech.

Configuration is read from --config, or aryad.yaml in ., ./configs or
/etc/aryad, with ARYAD_* environment overrides.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "path to config file (e.g. configs/aryad.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(flags),
		newDetectCmd(flags),
		newTrainCmd(flags),
		newChatCmd(flags),
		newVersionCmd(),
	)
	return root
}

// load reads and validates the configuration and installs the logger.
func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	config.SetupLogging(cfg.Logging)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aryad %s (%s)\n", version, runtime.Version())
		},
	}
}
