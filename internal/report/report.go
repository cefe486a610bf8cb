// Package report renders scoring results for people and for tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"seqsentry/internal/runner"
	"seqsentry/internal/sequence"
	"seqsentry/internal/store"
)

const width = 72

// PrintReport writes the rarest top sessions of result to w. top <= 0
// lists every session.
func PrintReport(w io.Writer, result *runner.Result, top int) {
	if result == nil {
		fmt.Fprintln(w, "No scoring results available")
		return
	}

	fmt.Fprintln(w, strings.Repeat("=", width))
	fmt.Fprintln(w, "                      ANOMALOUS SESSION REPORT")
	fmt.Fprintln(w, strings.Repeat("=", width))
	fmt.Fprintln(w)

	if result.InputPath != "" {
		fmt.Fprintf(w, "Input:          %s (%s)\n", result.InputPath, result.Format)
	}
	fmt.Fprintf(w, "Run:            %s\n", result.RunID)
	if !result.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Started:        %s\n", result.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Digest:         %s\n", result.Digest)
	fmt.Fprintf(w, "Model:          %s, window %d%s\n",
		result.ModelType, result.WindowLength, optionSuffix(result.Options))
	fmt.Fprintf(w, "Vocabulary:     %d commands, %d params, %d values\n",
		result.Vocabulary.Commands, result.Vocabulary.Params, result.Vocabulary.Values)
	scored := result.ScoredCount()
	fmt.Fprintf(w, "Sessions:       %d scored, %d too short\n", scored, len(result.Scores)-scored)
	fmt.Fprintf(w, "Duration:       train %s, score %s\n",
		FormatDuration(result.TrainDuration), FormatDuration(result.ScoreDuration))
	fmt.Fprintln(w)

	rarest := result.Rarest(top)
	fmt.Fprintln(w, strings.Repeat("-", width))
	if top > 0 && top < len(result.Scores) {
		fmt.Fprintf(w, "RAREST %d SESSIONS\n", len(rarest))
	} else {
		fmt.Fprintln(w, "ALL SESSIONS BY LIKELIHOOD")
	}
	fmt.Fprintln(w, strings.Repeat("-", width))
	fmt.Fprintln(w)

	if len(rarest) == 0 {
		fmt.Fprintln(w, "No sessions in input")
		fmt.Fprintln(w)
	}
	for i, s := range rarest {
		fmt.Fprintf(w, "%d. session %s  (%d commands)\n", i+1, s.SessionID, s.Length)
		if !s.Window.Scored() {
			fmt.Fprintf(w, "   shorter than the window, not scored\n\n")
			continue
		}
		fmt.Fprintf(w, "   Likelihood: %s  %s\n", FormatLikelihood(s.Window.Likelihood), likelihoodBar(s.Window.Likelihood))
		fmt.Fprintf(w, "   Window:     %s (at %d)\n", FormatWindow(s.Window.Cmds), s.Window.Index)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("=", width))
}

// PrintHistory writes a table of stored runs.
func PrintHistory(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}

	fmt.Fprintf(w, "%-36s  %-20s  %-8s  %6s  %8s  %s\n", "RUN", "CREATED", "MODEL", "WINDOW", "SESSIONS", "INPUT")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %-8s  %6d  %8d  %s\n",
			r.ID, r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), r.ModelType, r.WindowLength, r.SessionCount, r.InputPath)
	}
}

// PrintRun writes a stored run and its scores.
func PrintRun(w io.Writer, run *store.Run, scores []store.Score) {
	fmt.Fprintf(w, "Run:            %s\n", run.ID)
	fmt.Fprintf(w, "Created:        %s\n", run.CreatedAt.Format(time.RFC3339))
	if run.InputPath != "" {
		fmt.Fprintf(w, "Input:          %s\n", run.InputPath)
	}
	fmt.Fprintf(w, "Digest:         %s\n", run.CorpusDigest)
	fmt.Fprintf(w, "Model:          %s, window %d%s\n", run.ModelType, run.WindowLength,
		optionSuffix(sequence.SlidingOptions{UseStartEndTokens: run.UseStartEnd, UseGeoMean: run.UseGeoMean}))
	fmt.Fprintf(w, "Sessions:       %d\n", run.SessionCount)
	fmt.Fprintln(w)

	for i, sc := range scores {
		if math.IsNaN(sc.Likelihood) {
			fmt.Fprintf(w, "%d. session %s  not scored\n", i+1, sc.SessionID)
			continue
		}
		names := make([]string, len(sc.Window))
		for j, c := range sc.Window {
			names[j] = c.Name
		}
		fmt.Fprintf(w, "%d. session %s  %s  [%s] (at %d)\n",
			i+1, sc.SessionID, FormatLikelihood(sc.Likelihood), strings.Join(names, " "), sc.WindowIndex)
	}
}

func optionSuffix(o sequence.SlidingOptions) string {
	var opts []string
	if o.UseStartEndTokens {
		opts = append(opts, "start/end tokens")
	}
	if o.UseGeoMean {
		opts = append(opts, "geometric mean")
	}
	if len(opts) == 0 {
		return ""
	}
	return ", " + strings.Join(opts, ", ")
}

// FormatLikelihood renders a likelihood, "n/a" for NaN.
func FormatLikelihood(l float64) string {
	if math.IsNaN(l) {
		return "n/a"
	}
	return fmt.Sprintf("%.3e", l)
}

// FormatWindow renders window commands with their params, e.g.
// "[ls cd(-p) rm(force=yes)]".
func FormatWindow(cmds sequence.Session) string {
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = c.Name
		names := c.ParamNames()
		if len(names) == 0 {
			continue
		}
		params := make([]string, len(names))
		for j, p := range names {
			params[j] = p
			if v := c.Params[p]; v != "" {
				params[j] = p + "=" + v
			}
		}
		parts[i] += "(" + strings.Join(params, ",") + ")"
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// likelihoodBar draws -log10 of the likelihood on a 0..12 scale: a longer
// bar is rarer.
func likelihoodBar(l float64) string {
	const (
		cells = 20
		span  = 12.0
	)
	if l <= 0 {
		return "[" + strings.Repeat("#", cells) + "]"
	}
	v := -math.Log10(l) / span
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(v * cells)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", cells-filled) + "]"
}

// FormatDuration renders short durations with millisecond precision.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Round(time.Millisecond).String()
	}
}

// JSONReport is the machine-readable form of a result.
type JSONReport struct {
	RunID         string            `json:"run_id"`
	Input         string            `json:"input,omitempty"`
	Format        string            `json:"format"`
	Digest        string            `json:"digest"`
	ModelType     string            `json:"model_type"`
	WindowLength  int               `json:"window_length"`
	UseStartEnd   bool              `json:"use_start_end_tokens"`
	UseGeoMean    bool              `json:"use_geo_mean"`
	Vocabulary    runner.Vocabulary `json:"vocabulary"`
	CreatedAt     time.Time         `json:"created_at"`
	TrainDuration float64           `json:"train_duration_seconds"`
	ScoreDuration float64           `json:"score_duration_seconds"`
	Sessions      []JSONSession     `json:"sessions"`
}

// JSONSession is one scored session. Likelihood is null when unscored.
type JSONSession struct {
	ID          string            `json:"id"`
	Ordinal     int               `json:"ordinal"`
	Length      int               `json:"length"`
	Likelihood  *float64          `json:"likelihood"`
	WindowIndex int               `json:"window_index"`
	Window      []store.WindowCmd `json:"window"`
}

// NewJSONReport converts result, keeping the top rarest sessions.
func NewJSONReport(result *runner.Result, top int) JSONReport {
	rep := JSONReport{
		RunID:         result.RunID,
		Input:         result.InputPath,
		Format:        result.Format.String(),
		Digest:        result.Digest,
		ModelType:     result.ModelType.String(),
		WindowLength:  result.WindowLength,
		UseStartEnd:   result.Options.UseStartEndTokens,
		UseGeoMean:    result.Options.UseGeoMean,
		Vocabulary:    result.Vocabulary,
		CreatedAt:     result.CreatedAt,
		TrainDuration: result.TrainDuration.Seconds(),
		ScoreDuration: result.ScoreDuration.Seconds(),
		Sessions:      []JSONSession{},
	}
	for _, s := range result.Rarest(top) {
		js := JSONSession{
			ID:          s.SessionID,
			Ordinal:     s.Ordinal,
			Length:      s.Length,
			WindowIndex: s.Window.Index,
			Window:      runner.WindowCmds(s.Window.Cmds),
		}
		if s.Window.Scored() {
			l := s.Window.Likelihood
			js.Likelihood = &l
		}
		rep.Sessions = append(rep.Sessions, js)
	}
	return rep
}

// WriteJSON writes result as indented JSON, rarest sessions first.
func WriteJSON(w io.Writer, result *runner.Result, top int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewJSONReport(result, top))
}
