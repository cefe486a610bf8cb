package sequence

import (
	"fmt"
	"sync"
)

// Options configures a Model.
type Options struct {
	// Tokens are the sentinel tokens. Zero value means DefaultTokens.
	Tokens Tokens

	// ModelType selects the modelled dimensions. Ignored if DetectType.
	ModelType ModelType

	// DetectType picks the model type from the training sessions.
	DetectType bool
}

// Model trains on a corpus of sessions and scores them by their rarest
// window. Training must complete before any scoring call.
type Model struct {
	sessions  []Session
	tokens    Tokens
	modelType ModelType

	counts     *Counts
	probs      *Probabilities
	modellable ParamSet
	scorer     *Scorer

	mu      sync.RWMutex
	results map[int][]Window
}

// NewModel prepares a model over sessions. The sessions are not copied and
// must not be modified afterwards.
func NewModel(sessions []Session, opts Options) (*Model, error) {
	tokens := opts.Tokens
	if tokens == (Tokens{}) {
		tokens = DefaultTokens()
	}
	if err := tokens.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tokens: %w", err)
	}

	mt := opts.ModelType
	if opts.DetectType {
		mt = DetectModelType(sessions)
	}

	return &Model{
		sessions:  sessions,
		tokens:    tokens,
		modelType: mt,
		results:   make(map[int][]Window),
	}, nil
}

// Train runs the counting pass, derives the probability tables and, for
// ModelValues, decides which params have categorical values.
func (m *Model) Train() error {
	counts, err := ComputeCounts(m.sessions, m.tokens, m.modelType)
	if err != nil {
		return fmt.Errorf("compute counts: %w", err)
	}
	probs, err := ComputeProbabilities(counts)
	if err != nil {
		return fmt.Errorf("compute probabilities: %w", err)
	}

	modellable := make(ParamSet)
	if m.modelType == ModelValues {
		modellable = ModellableParams(counts.Params, counts.ParamValues)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = counts
	m.probs = probs
	m.modellable = modellable
	m.scorer = NewScorer(probs, modellable)
	m.results = make(map[int][]Window)
	return nil
}

// ModelType returns the modelled dimensions.
func (m *Model) ModelType() ModelType {
	return m.modelType
}

// Tokens returns the sentinel tokens.
func (m *Model) Tokens() Tokens {
	return m.tokens
}

// Sessions returns the training sessions.
func (m *Model) Sessions() []Session {
	return m.sessions
}

// Counts returns the smoothed counts, nil before Train.
func (m *Model) Counts() *Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts
}

// Probabilities returns the probability tables, nil before Train.
func (m *Model) Probabilities() *Probabilities {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.probs
}

// Modellable returns the params whose values are modelled.
func (m *Model) Modellable() ParamSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.modellable
}

// Scorer returns the trained scorer.
func (m *Model) Scorer() (*Scorer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.scorer == nil {
		return nil, ErrNotTrained
	}
	return m.scorer, nil
}

// RarestWindows scores every training session and returns the rarest window
// of each, in session order. Results are cached per window length and
// replaced by a later call with the same length.
func (m *Model) RarestWindows(windowLen int, opts SlidingOptions) ([]Window, error) {
	scorer, err := m.Scorer()
	if err != nil {
		return nil, err
	}
	windows := make([]Window, len(m.sessions))
	for i, s := range m.sessions {
		w, err := scorer.RarestWindow(s, windowLen, opts)
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		windows[i] = w
	}

	m.mu.Lock()
	m.results[windowLen] = windows
	m.mu.Unlock()
	return windows, nil
}

// Results returns the cached rarest windows for windowLen.
func (m *Model) Results(windowLen int) ([]Window, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.results[windowLen]
	return w, ok
}

// Score returns the rarest window of a session that need not be part of the
// training corpus.
func (m *Model) Score(session Session, windowLen int, opts SlidingOptions) (Window, error) {
	scorer, err := m.Scorer()
	if err != nil {
		return unscoredWindow(), err
	}
	return scorer.RarestWindow(session, windowLen, opts)
}

// SessionLikelihoods returns the likelihood of every training session taken
// as a single window.
func (m *Model) SessionLikelihoods(useStartEnd bool) ([]float64, error) {
	scorer, err := m.Scorer()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(m.sessions))
	for i, s := range m.sessions {
		lik, err := scorer.SessionLikelihood(s, useStartEnd)
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		out[i] = lik
	}
	return out, nil
}
