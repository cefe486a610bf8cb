package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"seqsentry/internal/config"
	"seqsentry/internal/logging"
	"seqsentry/internal/store"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "seqsentry",
		Short: "Anomalous command-sequence detection",
		Long: "seqsentry trains a Markov model of commands, params and values on a corpus of " +
			"sessions and ranks each session by the likelihood of its rarest sliding window.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "Configuration file (default "+config.ConfigPath()+")")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newScoreCmd(g),
		newWatchCmd(g),
		newValidateCmd(g),
		newHistoryCmd(g),
		newConfigCmd(g),
		newDBCmd(g),
		newVersionCmd(),
	)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("seqsentry %s\n", Version))

	return root
}

// path returns the configuration file in use.
func (g *globalFlags) path() string {
	if g.configPath != "" {
		return g.configPath
	}
	return config.ConfigPath()
}

// load reads the configuration and applies the global flag overrides. The
// result is not validated.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.path())
	if err != nil {
		return nil, err
	}
	g.apply(cfg)
	return cfg, nil
}

func (g *globalFlags) apply(cfg *config.Config) {
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
}

// newLogger builds a logger from the logging section. Output to stdout and
// stderr follows the command's writers so tests can capture it.
func newLogger(cmd *cobra.Command, lc config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(lc.Format)
	if err != nil {
		return nil, err
	}

	cfg := &logging.Config{
		Level:          level,
		Format:         format,
		Output:         lc.Output,
		FilePath:       lc.FilePath,
		MaxSize:        int64(lc.MaxSizeMB),
		MaxAge:         lc.MaxAgeDays,
		MaxBackups:     lc.MaxBackups,
		Compress:       lc.Compress,
		AddSource:      lc.AddSource,
		RedactPatterns: lc.RedactPatterns,
		Component:      "seqsentry",
	}
	switch lc.Output {
	case "stdout":
		cfg.Writer = cmd.OutOrStdout()
	case "stderr", "":
		cfg.Writer = cmd.ErrOrStderr()
	}
	return logging.New(cfg)
}

// openStore opens the result store, or returns nil if storage is disabled.
func openStore(cfg *config.Config) (*store.Store, error) {
	if !cfg.Storage.Enabled {
		return nil, nil
	}
	return store.Open(cfg.Storage.Path)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "seqsentry %s\n", Version)
			return nil
		},
	}
}
