package main

import (
	"github.com/spf13/cobra"

	"seqsentry/internal/config"
	"seqsentry/internal/metrics"
	"seqsentry/internal/report"
	"seqsentry/internal/runner"
)

// modelFlags override the model and input sections of the configuration.
type modelFlags struct {
	format    string
	window    int
	startEnd  bool
	geoMean   bool
	modelType string
}

func (f *modelFlags) register(cmd *cobra.Command) {
	defaults := config.DefaultConfig()
	cmd.Flags().StringVar(&f.format, "format", "", "Input format: sequence, keyed or tabular (default by extension)")
	cmd.Flags().IntVar(&f.window, "window", defaults.Model.WindowLength, "Sliding window length")
	cmd.Flags().BoolVar(&f.startEnd, "start-end", defaults.Model.UseStartEndTokens, "Score with start and end tokens")
	cmd.Flags().BoolVar(&f.geoMean, "geo-mean", defaults.Model.UseGeoMean, "Normalise window likelihoods by the geometric mean")
	cmd.Flags().StringVar(&f.modelType, "model-type", defaults.Model.ModelType, "Model type: auto, commands, params or values")
}

// apply copies the flags the user set onto cfg.
func (f *modelFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Input.Format = f.format
	}
	if flags.Changed("window") {
		cfg.Model.WindowLength = f.window
	}
	if flags.Changed("start-end") {
		cfg.Model.UseStartEndTokens = f.startEnd
	}
	if flags.Changed("geo-mean") {
		cfg.Model.UseGeoMean = f.geoMean
	}
	if flags.Changed("model-type") {
		cfg.Model.ModelType = f.modelType
	}
}

// outputFlags select how results are printed.
type outputFlags struct {
	top     int
	json    bool
	noStore bool
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.top, "top", 10, "Number of rarest sessions to show (0 for all)")
	cmd.Flags().BoolVar(&f.json, "json", false, "Write results as JSON")
	cmd.Flags().BoolVar(&f.noStore, "no-store", false, "Do not record the run in the result store")
}

func (f *outputFlags) write(cmd *cobra.Command, res *runner.Result) error {
	if f.json {
		return report.WriteJSON(cmd.OutOrStdout(), res, f.top)
	}
	report.PrintReport(cmd.OutOrStdout(), res, f.top)
	return nil
}

// setup loads and validates the configuration with all overrides applied.
func setup(cmd *cobra.Command, g *globalFlags, mf *modelFlags, of *outputFlags) (*config.Config, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	mf.apply(cmd, cfg)
	if of.noStore {
		cfg.Storage.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newScoreCmd(g *globalFlags) *cobra.Command {
	var mf modelFlags
	var of outputFlags

	cmd := &cobra.Command{
		Use:   "score <file>",
		Short: "Train on a session file and report its rarest sessions",
		Long: "Train a model on every session in the file, find the least likely sliding window " +
			"of each session and list the sessions with the rarest windows first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, g, &mf, &of)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			log, err := newLogger(cmd, cfg.Logging)
			if err != nil {
				return err
			}
			defer log.Close()

			opts := []runner.Option{
				runner.WithLogger(log),
				runner.WithMetrics(metrics.NewScoring(nil)),
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
				opts = append(opts, runner.WithStore(st))
			}

			r, err := runner.New(cfg, opts...)
			if err != nil {
				return err
			}
			res, err := r.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return of.write(cmd, res)
		},
	}

	mf.register(cmd)
	of.register(cmd)
	return cmd
}
