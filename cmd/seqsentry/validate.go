package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"seqsentry/internal/ingest"
	"seqsentry/internal/runner"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	var format string
	var printSchema bool

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a session file without scoring it",
		Long: "Decode the file in the selected format and validate sequence and keyed input " +
			"against the session JSON Schema. With --schema, print the schema instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if printSchema {
				_, err := cmd.OutOrStdout().Write(ingest.Schema())
				return err
			}
			if len(args) != 1 {
				return fmt.Errorf("validate requires a file argument")
			}

			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("format") {
				cfg.Input.Format = format
			}
			cfg.Storage.Enabled = false

			r, err := runner.New(cfg)
			if err != nil {
				return err
			}
			records, f, err := r.Load(args[0])
			if err != nil {
				return err
			}

			commands := 0
			for _, rec := range records {
				commands += len(rec.Session)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid %s input, %d sessions, %d commands, digest %s\n",
				args[0], f, len(records), commands, ingest.Digest(records))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Input format: sequence, keyed or tabular (default by extension)")
	cmd.Flags().BoolVar(&printSchema, "schema", false, "Print the session JSON Schema")
	return cmd
}
