// Package runner ties ingest, training, scoring, persistence and metrics
// into a single scoring run over one session file.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"seqsentry/internal/config"
	"seqsentry/internal/ingest"
	"seqsentry/internal/logging"
	"seqsentry/internal/metrics"
	"seqsentry/internal/sequence"
	"seqsentry/internal/store"
)

// ErrInputTooLarge is returned when an input file exceeds the configured
// maximum size.
var ErrInputTooLarge = errors.New("input file too large")

// Runner executes scoring runs with a fixed configuration.
type Runner struct {
	cfg     *config.Config
	log     *logging.Logger
	store   *store.Store
	metrics *metrics.Scoring
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithStore records every run in s.
func WithStore(s *store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithMetrics records run outcomes in m.
func WithMetrics(m *metrics.Scoring) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a runner. The configuration is validated and copied.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg: cfg.Clone(),
		log: logging.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the runner's configuration.
func (r *Runner) Config() *config.Config {
	return r.cfg
}

// SessionScore is the rarest window of one input session.
type SessionScore struct {
	SessionID string
	Ordinal   int
	Length    int
	Window    sequence.Window
}

// Vocabulary holds the table sizes of a trained model, sentinel and
// unknown tokens included.
type Vocabulary struct {
	Commands int `json:"commands"`
	Params   int `json:"params"`
	Values   int `json:"values"`
}

// Result is the outcome of a scoring run.
type Result struct {
	RunID        string
	InputPath    string
	Format       ingest.Format
	Digest       string
	ModelType    sequence.ModelType
	WindowLength int
	Options      sequence.SlidingOptions
	Vocabulary   Vocabulary
	CreatedAt    time.Time

	TrainDuration time.Duration
	ScoreDuration time.Duration

	// Scores are in input order.
	Scores []SessionScore
}

// ScoredCount returns the number of sessions with a rarest window.
func (res *Result) ScoredCount() int {
	n := 0
	for _, s := range res.Scores {
		if s.Window.Scored() {
			n++
		}
	}
	return n
}

// Rarest returns up to n scores with the lowest likelihood first. Unscored
// sessions sort last and ties keep input order. n <= 0 returns all.
func (res *Result) Rarest(n int) []SessionScore {
	out := make([]SessionScore, len(res.Scores))
	copy(out, res.Scores)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Window.Likelihood, out[j].Window.Likelihood
		switch {
		case math.IsNaN(a):
			return false
		case math.IsNaN(b):
			return true
		default:
			return a < b
		}
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Format returns the input format for path: the configured format when set,
// otherwise the one implied by the file extension.
func (r *Runner) Format(path string) (ingest.Format, error) {
	if r.cfg.Input.Format != "" {
		return ingest.ParseFormat(r.cfg.Input.Format)
	}
	return ingest.FormatFromPath(path)
}

// Load reads and validates the sessions in path.
func (r *Runner) Load(path string) ([]ingest.Record, ingest.Format, error) {
	format, err := r.Format(path)
	if err != nil {
		return nil, format, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, format, fmt.Errorf("stat input: %w", err)
	}
	if limit := r.cfg.Input.MaxFileSize; limit > 0 && info.Size() > limit {
		return nil, format, fmt.Errorf("%s: %w (%d > %d bytes)", path, ErrInputTooLarge, info.Size(), limit)
	}

	records, err := ingest.ReadFile(path, format)
	if err != nil {
		return nil, format, err
	}
	return records, format, nil
}

// Run trains a model on the sessions in path, finds the rarest window of
// each session and records the run. Cancelling ctx stops scoring between
// sessions.
func (r *Runner) Run(ctx context.Context, path string) (*Result, error) {
	res, err := r.run(ctx, path)
	if err != nil && r.metrics != nil {
		r.metrics.RecordError()
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, format, err := r.Load(path)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:        uuid.NewString(),
		InputPath:    path,
		Format:       format,
		Digest:       ingest.Digest(records),
		WindowLength: r.cfg.Model.WindowLength,
		Options:      r.cfg.ScoringOptions(),
		CreatedAt:    r.now(),
	}
	log := r.log.WithRunID(res.RunID)
	log.Info("scoring run started",
		"input", path,
		"format", format.String(),
		"sessions", len(records),
		"digest", res.Digest)

	opts, err := r.cfg.ModelOptions()
	if err != nil {
		return nil, err
	}
	model, err := sequence.NewModel(ingest.Sessions(records), opts)
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}
	res.ModelType = model.ModelType()

	start := time.Now()
	if err := model.Train(); err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	res.TrainDuration = time.Since(start)

	counts := model.Counts()
	res.Vocabulary = Vocabulary{
		Commands: counts.Commands.Len(),
		Params:   counts.Params.Len(),
		Values:   counts.Values.Len(),
	}
	log.Debug("model trained",
		"model_type", res.ModelType.String(),
		"commands", res.Vocabulary.Commands,
		"params", res.Vocabulary.Params,
		"values", res.Vocabulary.Values,
		"duration", res.TrainDuration)

	scorer, err := model.Scorer()
	if err != nil {
		return nil, err
	}

	start = time.Now()
	res.Scores = make([]SessionScore, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, err := scorer.RarestWindow(rec.Session, res.WindowLength, res.Options)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", rec.ID, err)
		}
		res.Scores[i] = SessionScore{
			SessionID: rec.ID,
			Ordinal:   i,
			Length:    len(rec.Session),
			Window:    w,
		}
	}
	res.ScoreDuration = time.Since(start)

	if r.store != nil {
		if err := r.persist(res); err != nil {
			return nil, err
		}
	}

	scored := res.ScoredCount()
	rarest := math.NaN()
	if top := res.Rarest(1); len(top) == 1 {
		rarest = top[0].Window.Likelihood
	}
	if r.metrics != nil {
		r.metrics.TrainDuration.ObserveDuration(res.TrainDuration)
		r.metrics.ScoreDuration.ObserveDuration(res.ScoreDuration)
		r.metrics.ObserveRun(metrics.RunStats{
			Trained:    len(records),
			Scored:     scored,
			Unscored:   len(records) - scored,
			Commands:   res.Vocabulary.Commands,
			Params:     res.Vocabulary.Params,
			Values:     res.Vocabulary.Values,
			Rarest:     rarest,
			FinishedAt: r.now(),
		})
	}

	attrs := []any{
		"scored", scored,
		"unscored", len(records) - scored,
		"duration", res.TrainDuration + res.ScoreDuration,
	}
	if !math.IsNaN(rarest) {
		attrs = append(attrs, "rarest", rarest)
	}
	log.Info("scoring run finished", attrs...)
	return res, nil
}

func (r *Runner) persist(res *Result) error {
	run := &store.Run{
		ID:            res.RunID,
		CreatedAt:     res.CreatedAt,
		InputPath:     res.InputPath,
		CorpusDigest:  res.Digest,
		ModelType:     res.ModelType.String(),
		WindowLength:  res.WindowLength,
		UseStartEnd:   res.Options.UseStartEndTokens,
		UseGeoMean:    res.Options.UseGeoMean,
		SessionCount:  len(res.Scores),
		VocabularyLen: res.Vocabulary.Commands,
		DurationMs:    (res.TrainDuration + res.ScoreDuration).Milliseconds(),
	}
	if err := r.store.InsertRun(run); err != nil {
		return err
	}

	scores := make([]store.Score, len(res.Scores))
	for i, s := range res.Scores {
		scores[i] = store.Score{
			RunID:       res.RunID,
			SessionID:   s.SessionID,
			Ordinal:     s.Ordinal,
			Likelihood:  s.Window.Likelihood,
			WindowIndex: s.Window.Index,
			Window:      WindowCmds(s.Window.Cmds),
		}
	}
	return r.store.InsertScores(res.RunID, scores)
}

// WindowCmds converts a window to its stored form.
func WindowCmds(cmds sequence.Session) []store.WindowCmd {
	out := make([]store.WindowCmd, len(cmds))
	for i, c := range cmds {
		out[i] = store.WindowCmd{Name: c.Name}
		if len(c.Params) > 0 {
			out[i].Params = make(map[string]string, len(c.Params))
			for k, v := range c.Params {
				out[i].Params[k] = v
			}
		}
	}
	return out
}
