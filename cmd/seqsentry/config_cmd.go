package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"seqsentry/internal/config"
	"seqsentry/internal/store"
)

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, created, err := config.LoadOrCreate(g.path())
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", g.path())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists and is valid\n", g.path())
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK (%s)\n", g.path())
			return nil
		},
	})

	return cmd
}

func newDBCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the result store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the schema version and applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := store.ValidateSchema(st.DB()); err != nil {
				return err
			}
			status, err := store.GetMigrationStatus(st.DB())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database:       %s\n", cfg.Storage.Path)
			fmt.Fprintf(out, "Schema version: %d (latest %d)\n", status.CurrentVersion, status.LatestVersion)
			for _, m := range status.Applied {
				fmt.Fprintf(out, "  v%d  %s  %s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04:05"), m.Description)
			}
			return nil
		},
	})

	return cmd
}
