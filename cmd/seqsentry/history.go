package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"seqsentry/internal/report"
	"seqsentry/internal/store"
)

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var limit int
	var asJSON bool
	var remove bool

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs or show one run",
		Long: "Without arguments, list the most recent runs in the result store. With a run ID, " +
			"show that run and its rarest sessions.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if !cfg.Storage.Enabled {
				return errors.New("result storage is disabled in the configuration")
			}
			st, err := store.Open(cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")

			if len(args) == 0 {
				if remove {
					return errors.New("--delete requires a run ID")
				}
				runs, err := st.ListRuns(limit)
				if err != nil {
					return err
				}
				if asJSON {
					if runs == nil {
						runs = []store.Run{}
					}
					return enc.Encode(runs)
				}
				report.PrintHistory(out, runs)
				return nil
			}

			id := args[0]
			if remove {
				if err := st.DeleteRun(id); err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted run %s\n", id)
				return nil
			}

			run, err := st.GetRun(id)
			if err != nil {
				return err
			}
			scores, err := st.ScoresForRun(id, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return enc.Encode(newStoredRunJSON(run, scores))
			}
			report.PrintRun(out, run, scores)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs or scores to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write output as JSON")
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete the given run and its scores")
	return cmd
}

type storedScoreJSON struct {
	SessionID   string            `json:"session_id"`
	Ordinal     int               `json:"ordinal"`
	Likelihood  *float64          `json:"likelihood"`
	WindowIndex int               `json:"window_index"`
	Window      []store.WindowCmd `json:"window"`
}

type storedRunJSON struct {
	store.Run
	Scores []storedScoreJSON `json:"scores"`
}

func newStoredRunJSON(run *store.Run, scores []store.Score) storedRunJSON {
	out := storedRunJSON{Run: *run, Scores: make([]storedScoreJSON, len(scores))}
	for i, sc := range scores {
		s := storedScoreJSON{
			SessionID:   sc.SessionID,
			Ordinal:     sc.Ordinal,
			WindowIndex: sc.WindowIndex,
			Window:      sc.Window,
		}
		if !math.IsNaN(sc.Likelihood) {
			l := sc.Likelihood
			s.Likelihood = &l
		}
		out.Scores[i] = s
	}
	return out
}
