package sequence

import (
	"math"
)

// Scorer computes likelihoods from a set of trained probability tables. It
// holds no mutable state and is safe for concurrent use.
type Scorer struct {
	probs      *Probabilities
	modellable ParamSet
}

// NewScorer returns a Scorer over p. modellable is only consulted for
// ModelValues and may be nil otherwise.
func NewScorer(p *Probabilities, modellable ParamSet) *Scorer {
	if modellable == nil {
		modellable = make(ParamSet)
	}
	return &Scorer{probs: p, modellable: modellable}
}

// Probabilities returns the tables the scorer reads from.
func (s *Scorer) Probabilities() *Probabilities {
	return s.probs
}

// Modellable returns the params whose values contribute to scores.
func (s *Scorer) Modellable() ParamSet {
	return s.modellable
}

// ParamsLikelihood returns the probability of cmd's set of params (and, for
// ModelValues, the values of modellable params) given the command name.
//
// Each param known for the command contributes p if present and 1-p if
// absent. A command without params scores 1. With useGeoMean the product is
// raised to 1/k, k being the number of params known for the command plus the
// number of values that contributed, so commands with differing numbers of
// params remain comparable.
func (s *Scorer) ParamsLikelihood(cmd Cmd, useGeoMean bool) float64 {
	if s.probs.ModelType < ModelParams || len(cmd.Params) == 0 {
		return 1
	}

	ref := s.probs.ParamsGivenCmd.Row(cmd.Name)
	withValues := s.probs.ModelType == ModelValues

	prob := 1.0
	num := 0
	for _, param := range ref.Keys() {
		p1 := ref.Get(param)
		v, present := cmd.Params[param]
		if !present {
			prob *= 1 - p1
			continue
		}
		prob *= p1
		if withValues && s.modellable.Contains(param) {
			num++
			prob *= s.probs.ValuesGivenParam.Get(param, v)
		}
	}

	if useGeoMean {
		if k := ref.Len() + num; k > 0 {
			prob = math.Pow(prob, 1/float64(k))
		}
	}
	return prob
}

// WindowOptions controls the sentinel transitions applied to a window.
type WindowOptions struct {
	// UseStartToken scores the first command by its transition from the
	// start token instead of its prior.
	UseStartToken bool

	// UseEndToken multiplies in the transition from the last command to
	// the end token.
	UseEndToken bool
}

// WindowLikelihood computes the likelihood of window. An empty window
// yields NaN. Param likelihoods inside the window are always geometric-mean
// normalised.
func (s *Scorer) WindowLikelihood(window Session, opts WindowOptions) (float64, error) {
	tokens := s.probs.Tokens
	if opts.UseStartToken && tokens.Start == "" {
		return math.NaN(), ErrTokenRequired
	}
	if opts.UseEndToken && tokens.End == "" {
		return math.NaN(), ErrTokenRequired
	}

	if len(window) == 0 {
		return math.NaN(), nil
	}

	first := window[0]
	params := s.ParamsLikelihood(first, true)

	var prob float64
	if opts.UseStartToken {
		prob = s.probs.Transitions.Get(tokens.Start, first.Name) * params
	} else {
		prob = s.probs.Prior.Get(first.Name) * params
	}

	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1], window[i]
		prob *= s.probs.Transitions.Get(prev.Name, cur.Name)
		prob *= s.ParamsLikelihood(cur, true)
	}

	if opts.UseEndToken {
		prob *= s.probs.Transitions.Get(window[len(window)-1].Name, tokens.End)
	}
	return prob, nil
}

// SlidingOptions controls scoring of sliding windows over a session.
type SlidingOptions struct {
	// UseStartEndTokens appends a synthetic end command to the session and
	// scores the first window from the start token.
	UseStartEndTokens bool

	// UseGeoMean raises each window likelihood to 1/windowLen.
	UseGeoMean bool
}

// SessionLikelihoods returns the likelihood of every window of length
// windowLen in session, sliding with stride one. Only the window at
// position zero uses the start transition. The end token is scored solely
// through the appended synthetic command.
func (s *Scorer) SessionLikelihoods(session Session, windowLen int, opts SlidingOptions) ([]float64, error) {
	if windowLen < 1 {
		return nil, ErrInvalidWindowLength
	}
	tokens := s.probs.Tokens
	if opts.UseStartEndTokens && (tokens.Start == "" || tokens.End == "") {
		return nil, ErrTokenRequired
	}

	seq := make(Session, len(session), len(session)+1)
	copy(seq, session)
	if opts.UseStartEndTokens {
		seq = append(seq, Cmd{Name: tokens.End, Params: map[string]string{}})
	}

	var likelihoods []float64
	for i := 0; i+windowLen <= len(seq); i++ {
		lik, err := s.WindowLikelihood(seq[i:i+windowLen], WindowOptions{
			UseStartToken: i == 0 && opts.UseStartEndTokens,
		})
		if err != nil {
			return nil, err
		}
		if opts.UseGeoMean {
			lik = math.Pow(lik, 1/float64(windowLen))
		}
		likelihoods = append(likelihoods, lik)
	}
	return likelihoods, nil
}

// Window is the rarest part of a session and its likelihood.
type Window struct {
	// Index is the position of the window in the session, -1 if none.
	Index int
	// Cmds is the sub-sequence of the session, empty if none.
	Cmds Session
	// Likelihood is NaN when no window could be scored.
	Likelihood float64
}

// Scored reports whether a window was found.
func (w Window) Scored() bool {
	return w.Index >= 0 && !math.IsNaN(w.Likelihood)
}

func unscoredWindow() Window {
	return Window{Index: -1, Cmds: Session{}, Likelihood: math.NaN()}
}

// RarestWindow finds the window of length windowLen with the lowest
// likelihood. Ties resolve to the earliest window. An empty session or one
// shorter than windowLen yields an empty window with NaN likelihood.
func (s *Scorer) RarestWindow(session Session, windowLen int, opts SlidingOptions) (Window, error) {
	if windowLen < 1 {
		return unscoredWindow(), ErrInvalidWindowLength
	}
	if len(session) == 0 || len(session) < windowLen {
		return unscoredWindow(), nil
	}

	likelihoods, err := s.SessionLikelihoods(session, windowLen, opts)
	if err != nil {
		return unscoredWindow(), err
	}
	if len(likelihoods) == 0 {
		return unscoredWindow(), nil
	}

	ind := 0
	for i, lik := range likelihoods {
		if lik < likelihoods[ind] {
			ind = i
		}
	}

	// The window may run into the synthetic end command, which is not
	// part of the returned session slice.
	end := ind + windowLen
	if end > len(session) {
		end = len(session)
	}
	cmds := make(Session, end-ind)
	copy(cmds, session[ind:end])
	return Window{Index: ind, Cmds: cmds, Likelihood: likelihoods[ind]}, nil
}

// SessionLikelihood scores the whole session as one window, with start and
// end transitions when useStartEnd is set.
func (s *Scorer) SessionLikelihood(session Session, useStartEnd bool) (float64, error) {
	return s.WindowLikelihood(session, WindowOptions{
		UseStartToken: useStartEnd,
		UseEndToken:   useStartEnd,
	})
}
