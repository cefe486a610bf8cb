package sequence

import "fmt"

// Probabilities holds the probability tables derived from smoothed Counts.
type Probabilities struct {
	Prior            Table  // probability of individual commands
	Transitions      Matrix // probability of current command given previous
	Params           Table  // probability of individual params
	ParamsGivenCmd   Matrix // probability of a param given the command
	Values           Table  // probability of individual values
	ValuesGivenParam Matrix // probability of a value given the param

	Tokens    Tokens
	ModelType ModelType
}

// ComputeProbabilities normalises every table in c. Unigram tables are
// divided by their total and conditional tables are normalised row by row so
// that each row sums to one.
func ComputeProbabilities(c *Counts) (*Probabilities, error) {
	p := &Probabilities{Tokens: c.Tokens, ModelType: c.ModelType}
	var err error

	if p.Prior, err = normalizeTable(c.Commands); err != nil {
		return nil, fmt.Errorf("prior probabilities: %w", err)
	}
	if p.Transitions, err = normalizeMatrix(c.Transitions); err != nil {
		return nil, fmt.Errorf("transition probabilities: %w", err)
	}
	if c.ModelType < ModelParams {
		return p, nil
	}

	if p.Params, err = normalizeTable(c.Params); err != nil {
		return nil, fmt.Errorf("param probabilities: %w", err)
	}
	if p.ParamsGivenCmd, err = normalizeMatrix(c.CmdParams); err != nil {
		return nil, fmt.Errorf("param given command probabilities: %w", err)
	}
	if c.ModelType < ModelValues {
		return p, nil
	}

	if p.Values, err = normalizeTable(c.Values); err != nil {
		return nil, fmt.Errorf("value probabilities: %w", err)
	}
	if p.ValuesGivenParam, err = normalizeMatrix(c.ParamValues); err != nil {
		return nil, fmt.Errorf("value given param probabilities: %w", err)
	}
	return p, nil
}

func normalizeTable(t Table) (Table, error) {
	if t.IsZero() {
		return Table{}, ErrEmptyTable
	}
	total := t.Sum()
	if total <= 0 {
		return Table{}, ErrZeroMass
	}
	m := t.Map()
	for k, v := range m {
		m[k] = v / total
	}
	return NewTable(m, t.Unknown())
}

func normalizeMatrix(mx Matrix) (Matrix, error) {
	if mx.IsZero() {
		return Matrix{}, ErrEmptyTable
	}
	m := make(map[string]map[string]float64, mx.Len())
	for _, k := range mx.Keys() {
		row := mx.Row(k)
		total := row.Sum()
		if total <= 0 {
			return Matrix{}, fmt.Errorf("row %q: %w", k, ErrZeroMass)
		}
		probs := row.Map()
		for k2, v := range probs {
			probs[k2] = v / total
		}
		m[k] = probs
	}
	return NewMatrix(m, mx.Unknown())
}
