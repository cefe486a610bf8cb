package runner

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqsentry/internal/config"
	"seqsentry/internal/ingest"
	"seqsentry/internal/logging"
	"seqsentry/internal/metrics"
	"seqsentry/internal/sequence"
	"seqsentry/internal/store"
)

const corpus = `[
  ["ls", "cd", "ls"],
  ["ls", "cd", "ls"],
  ["ls", "cd", "ls"],
  ["ls", "cd", "ls"],
  ["ls", "cd", "ls"],
  ["ls", "cd", "ls"],
  ["ls", {"name": "rm", "params": ["-rf"]}, "cd"]
]`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "results.db")
	cfg.Model.WindowLength = 2
	return cfg
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.WindowLength = 0

	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	r, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Config().Model.WindowLength)
}

func TestRunScoresEverySession(t *testing.T) {
	path := writeInput(t, "sessions.json", corpus)
	r, err := New(testConfig(t))
	require.NoError(t, err)

	res, err := r.Run(context.Background(), path)
	require.NoError(t, err)

	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)
	assert.Equal(t, ingest.FormatSequence, res.Format)
	assert.Len(t, res.Digest, 64)
	assert.Equal(t, sequence.ModelParams, res.ModelType)
	require.Len(t, res.Scores, 7)

	// Scores match a model trained on the same sessions.
	records, err := ingest.ReadFile(path, ingest.FormatSequence)
	require.NoError(t, err)
	m, err := sequence.NewModel(ingest.Sessions(records), sequence.Options{DetectType: true})
	require.NoError(t, err)
	require.NoError(t, m.Train())

	for i, s := range res.Scores {
		assert.Equal(t, records[i].ID, s.SessionID)
		assert.Equal(t, i, s.Ordinal)
		assert.Equal(t, len(records[i].Session), s.Length)

		want, err := m.Score(records[i].Session, 2, sequence.SlidingOptions{UseStartEndTokens: true})
		require.NoError(t, err)
		assert.Equal(t, want.Index, s.Window.Index)
		assert.InDelta(t, want.Likelihood, s.Window.Likelihood, 1e-12)
	}

	// The rm session is the anomaly.
	top := res.Rarest(1)
	require.Len(t, top, 1)
	assert.Equal(t, "6", top[0].SessionID)
	assert.Equal(t, 7, res.ScoredCount())
	// ls, cd, rm and the three sentinels
	assert.Equal(t, 6, res.Vocabulary.Commands)
}

func TestRunUnscoredSessions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.UseStartEndTokens = false
	cfg.Model.ModelType = "commands"
	path := writeInput(t, "sessions.json", `[["a", "b", "a"], ["a"], []]`)

	r, err := New(cfg)
	require.NoError(t, err)
	res, err := r.Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, res.ScoredCount())
	assert.False(t, res.Scores[1].Window.Scored())
	assert.Equal(t, -1, res.Scores[2].Window.Index)

	rarest := res.Rarest(0)
	require.Len(t, rarest, 3)
	assert.Equal(t, "0", rarest[0].SessionID)
	assert.True(t, math.IsNaN(rarest[1].Window.Likelihood))
	assert.Equal(t, "1", rarest[1].SessionID)
	assert.Equal(t, "2", rarest[2].SessionID)
}

func TestRunFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		format  ingest.Format
	}{
		{"keyed yaml", "sessions.yaml", "alice: [ls, cd]\nbob: [cd, ls]\n", ingest.FormatKeyed},
		{"tabular csv", "sessions.csv", "session_id,command\nalice,ls\nalice,cd\nbob,cd\n", ingest.FormatTabular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(testConfig(t))
			require.NoError(t, err)

			res, err := r.Run(context.Background(), writeInput(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.format, res.Format)
			require.Len(t, res.Scores, 2)
			assert.Equal(t, "alice", res.Scores[0].SessionID)
			assert.Equal(t, "bob", res.Scores[1].SessionID)
		})
	}
}

func TestRunConfiguredFormatOverridesExtension(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.Format = "tabular"
	path := writeInput(t, "sessions.txt", "session_id,command\ns1,ls\n")

	r, err := New(cfg)
	require.NoError(t, err)
	res, err := r.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, ingest.FormatTabular, res.Format)
}

func TestRunErrors(t *testing.T) {
	r, err := New(testConfig(t))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), writeInput(t, "sessions.txt", "[]"))
	assert.ErrorIs(t, err, ingest.ErrUnknownFormat)

	_, err = r.Run(context.Background(), writeInput(t, "bad.json", `{"a": 1}`))
	assert.ErrorIs(t, err, ingest.ErrInvalidInput)

	_, err = r.Run(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRunInputTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.MaxFileSize = 4

	r, err := New(cfg)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), writeInput(t, "sessions.json", corpus))
	assert.ErrorIs(t, err, ErrInputTooLarge)
}

func TestRunCancelled(t *testing.T) {
	r, err := New(testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx, writeInput(t, "sessions.json", corpus))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunPersists(t *testing.T) {
	cfg := testConfig(t)
	st, err := store.Open(cfg.Storage.Path)
	require.NoError(t, err)
	defer st.Close()

	r, err := New(cfg, WithStore(st))
	require.NoError(t, err)
	res, err := r.Run(context.Background(), writeInput(t, "sessions.json", corpus))
	require.NoError(t, err)

	run, err := st.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Digest, run.CorpusDigest)
	assert.Equal(t, "params", run.ModelType)
	assert.Equal(t, 2, run.WindowLength)
	assert.True(t, run.UseStartEnd)
	assert.Equal(t, 7, run.SessionCount)
	assert.Equal(t, res.Vocabulary.Commands, run.VocabularyLen)

	scores, err := st.ScoresForRun(res.RunID, 1)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	top := res.Rarest(1)[0]
	assert.Equal(t, top.SessionID, scores[0].SessionID)
	assert.Equal(t, top.Window.Index, scores[0].WindowIndex)
	assert.Equal(t, WindowCmds(top.Window.Cmds), scores[0].Window)
}

func TestRunMetrics(t *testing.T) {
	m := metrics.NewScoring(metrics.NewRegistry("test", ""))
	r, err := New(testConfig(t), WithMetrics(m))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), writeInput(t, "sessions.json", corpus))
	require.NoError(t, err)
	_, err = r.Run(context.Background(), writeInput(t, "bad.json", `{"a": 1}`))
	require.Error(t, err)

	assert.Equal(t, uint64(1), m.RunsTotal.Value())
	assert.Equal(t, uint64(1), m.ErrorsTotal.Value())
	assert.Equal(t, uint64(7), m.SessionsTrained.Value())
	assert.Equal(t, uint64(7), m.SessionsScored.Value())
	assert.Equal(t, 6.0, m.VocabularyCommands.Value())
	assert.Equal(t, uint64(1), m.TrainDuration.Count())
	assert.Greater(t, m.RarestLikelihood.Value(), 0.0)
}

func TestRunLogsRunID(t *testing.T) {
	var buf bytes.Buffer
	lcfg := logging.DefaultConfig()
	lcfg.Writer = &buf
	lcfg.Format = logging.FormatJSON
	log, err := logging.New(lcfg)
	require.NoError(t, err)

	r, err := New(testConfig(t), WithLogger(log))
	require.NoError(t, err)
	res, err := r.Run(context.Background(), writeInput(t, "sessions.json", corpus))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"run_id":"`+res.RunID+`"`)
	assert.Contains(t, buf.String(), "scoring run finished")
}

func TestWindowCmds(t *testing.T) {
	cmds := WindowCmds(sequence.Session{
		sequence.NewCmd("ls"),
		sequence.NewCmdWithValues("rm", map[string]string{"-rf": ""}),
	})
	assert.Equal(t, []store.WindowCmd{
		{Name: "ls"},
		{Name: "rm", Params: map[string]string{"-rf": ""}},
	}, cmds)
	assert.Empty(t, WindowCmds(nil))
}
