package sequence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectModelType(t *testing.T) {
	assert.Equal(t, ModelCommands, DetectModelType(nil))
	assert.Equal(t, ModelCommands, DetectModelType(abSessions()))
	assert.Equal(t, ModelParams, DetectModelType(paramSessions()))
	assert.Equal(t, ModelValues, DetectModelType(valueSessions(2)))
}

func TestParseModelType(t *testing.T) {
	for _, mt := range []ModelType{ModelCommands, ModelParams, ModelValues} {
		got, err := ParseModelType(mt.String())
		require.NoError(t, err)
		assert.Equal(t, mt, got)
	}
	_, err := ParseModelType("bogus")
	assert.Error(t, err)
}

func TestModelNotTrained(t *testing.T) {
	m, err := NewModel(abSessions(), Options{})
	require.NoError(t, err)

	_, err = m.Scorer()
	assert.ErrorIs(t, err, ErrNotTrained)

	_, err = m.RarestWindows(1, SlidingOptions{})
	assert.ErrorIs(t, err, ErrNotTrained)

	w, err := m.Score(Session{NewCmd("A")}, 1, SlidingOptions{})
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.True(t, math.IsNaN(w.Likelihood))

	_, err = m.SessionLikelihoods(true)
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestModelInvalidTokens(t *testing.T) {
	_, err := NewModel(abSessions(), Options{Tokens: Tokens{Start: "x", End: "x", Unknown: "u"}})
	assert.Error(t, err)
}

func TestModelEndToEnd(t *testing.T) {
	m, err := NewModel(abSessions(), Options{DetectType: true})
	require.NoError(t, err)
	assert.Equal(t, ModelCommands, m.ModelType())
	assert.Equal(t, DefaultTokens(), m.Tokens())
	require.NoError(t, m.Train())

	require.NotNil(t, m.Counts())
	require.NotNil(t, m.Probabilities())

	windows, err := m.RarestWindows(2, SlidingOptions{UseStartEndTokens: true})
	require.NoError(t, err)
	require.Len(t, windows, 2)
	for _, w := range windows {
		assert.True(t, w.Scored())
	}

	cached, ok := m.Results(2)
	require.True(t, ok)
	assert.Equal(t, windows, cached)

	_, ok = m.Results(3)
	assert.False(t, ok)

	w, err := m.Score(Session{NewCmd("A"), NewCmd("C")}, 1, SlidingOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, w.Cmds.Names())
	assert.InDelta(t, 8.0/40, w.Likelihood, tolerance)

	liks, err := m.SessionLikelihoods(true)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{
		(3.0 / 6) * (2.0 / 7) * (2.0 / 5),
		(3.0 / 6) * (2.0 / 7) * (2.0 / 7),
	}, liks, tolerance)
}

func TestModelValues(t *testing.T) {
	sessions := valueSessions(40)
	sessions = append(sessions, Session{
		NewCmdWithValues("run", map[string]string{"mode": "a", "id": "x"}),
		NewCmdWithValues("delete", map[string]string{"target": "everything"}),
	})

	m, err := NewModel(sessions, Options{ModelType: ModelValues})
	require.NoError(t, err)
	require.NoError(t, m.Train())

	assert.True(t, m.Modellable().Contains("mode"))

	windows, err := m.RarestWindows(1, SlidingOptions{UseGeoMean: true})
	require.NoError(t, err)
	require.Len(t, windows, len(sessions))

	last := windows[len(windows)-1]
	assert.Equal(t, 1, last.Index)
	assert.Equal(t, "delete", last.Cmds[0].Name)
}

func TestModelRetrainClearsResults(t *testing.T) {
	m, err := NewModel(abSessions(), Options{})
	require.NoError(t, err)
	require.NoError(t, m.Train())

	_, err = m.RarestWindows(1, SlidingOptions{})
	require.NoError(t, err)
	require.NoError(t, m.Train())

	_, ok := m.Results(1)
	assert.False(t, ok)
}
