package sequence

import "fmt"

// counter accumulates counts per key and remembers first-insertion order so
// vocabulary iteration is deterministic.
type counter struct {
	keys   []string
	counts map[string]float64
}

func newCounter() *counter {
	return &counter{counts: make(map[string]float64)}
}

// touch inserts k with a zero count if it is not present.
func (c *counter) touch(k string) {
	if _, ok := c.counts[k]; !ok {
		c.keys = append(c.keys, k)
		c.counts[k] = 0
	}
}

func (c *counter) inc(k string) {
	c.touch(k)
	c.counts[k]++
}

func (c *counter) has(k string) bool {
	_, ok := c.counts[k]
	return ok
}

// vocabulary returns the keys in insertion order followed by unk.
func (c *counter) vocabulary(unk string) []string {
	v := make([]string, 0, len(c.keys)+1)
	v = append(v, c.keys...)
	return append(v, unk)
}

// nestedCounter owns one counter per first-level key.
type nestedCounter struct {
	keys []string
	rows map[string]*counter
}

func newNestedCounter() *nestedCounter {
	return &nestedCounter{rows: make(map[string]*counter)}
}

// row returns the counter for k, inserting an empty one if needed.
func (n *nestedCounter) row(k string) *counter {
	r, ok := n.rows[k]
	if !ok {
		r = newCounter()
		n.keys = append(n.keys, k)
		n.rows[k] = r
	}
	return r
}

func (n *nestedCounter) inc(k1, k2 string) {
	n.row(k1).inc(k2)
}

// has reports whether (k1, k2) has been counted, without inserting.
func (n *nestedCounter) has(k1, k2 string) bool {
	r, ok := n.rows[k1]
	return ok && r.has(k2)
}

func (c *counter) table(unk string) (Table, error) {
	return NewTable(c.counts, unk)
}

func (n *nestedCounter) matrix(unk string) (Matrix, error) {
	m := make(map[string]map[string]float64, len(n.rows))
	for k, r := range n.rows {
		m[k] = r.counts
	}
	return NewMatrix(m, unk)
}

// Counts holds the Laplace-smoothed frequency tables of a training corpus.
// The param fields are zero for ModelCommands and the value fields are zero
// unless the model type is ModelValues.
type Counts struct {
	Commands    Table  // individual command counts
	Transitions Matrix // command bigram counts: previous -> current
	Params      Table  // individual param counts
	CmdParams   Matrix // param conditional on command counts
	Values      Table  // individual value counts
	ParamValues Matrix // value conditional on param counts

	Tokens    Tokens
	ModelType ModelType
}

// ComputeCounts runs the counting pass over sessions and applies Laplace
// smoothing over every counted dimension. The unknown token is added to each
// vocabulary so unseen commands, params and values receive probability mass.
func ComputeCounts(sessions []Session, tokens Tokens, modelType ModelType) (*Counts, error) {
	if err := tokens.Validate(); err != nil {
		return nil, err
	}
	start, end, unk := tokens.Start, tokens.End, tokens.Unknown

	seq1 := newCounter()
	seq2 := newNestedCounter()
	params := newCounter()
	cmdParams := newNestedCounter()
	values := newCounter()
	paramValues := newNestedCounter()

	// start and end are always part of the command vocabulary, even for an
	// empty corpus.
	seq1.touch(start)
	seq1.touch(end)

	withParams := modelType >= ModelParams
	withValues := modelType == ModelValues

	for _, session := range sessions {
		prev := start
		seq1.inc(prev)
		for _, cmd := range session {
			seq1.inc(cmd.Name)
			seq2.inc(prev, cmd.Name)
			prev = cmd.Name
			if !withParams {
				continue
			}
			for _, p := range cmd.ParamNames() {
				params.inc(p)
				cmdParams.inc(cmd.Name, p)
				if withValues {
					v := cmd.Params[p]
					values.inc(v)
					paramValues.inc(p, v)
				}
			}
		}
		seq2.inc(prev, end)
		seq1.inc(end)
	}

	cmds := smoothCommands(seq1, seq2, tokens)

	counts := &Counts{Tokens: tokens, ModelType: modelType}
	var err error
	if counts.Commands, err = seq1.table(unk); err != nil {
		return nil, fmt.Errorf("command counts: %w", err)
	}
	if counts.Transitions, err = seq2.matrix(unk); err != nil {
		return nil, fmt.Errorf("transition counts: %w", err)
	}
	if !withParams {
		return counts, nil
	}

	paramVocab := smoothConditional(params, cmdParams, cmds, unk)
	if counts.Params, err = params.table(unk); err != nil {
		return nil, fmt.Errorf("param counts: %w", err)
	}
	if counts.CmdParams, err = cmdParams.matrix(unk); err != nil {
		return nil, fmt.Errorf("param given command counts: %w", err)
	}
	if !withValues {
		return counts, nil
	}

	smoothConditional(values, paramValues, paramVocab, unk)
	if counts.Values, err = values.table(unk); err != nil {
		return nil, fmt.Errorf("value counts: %w", err)
	}
	if counts.ParamValues, err = paramValues.matrix(unk); err != nil {
		return nil, fmt.Errorf("value given param counts: %w", err)
	}
	return counts, nil
}

// smoothCommands adds one to every bigram over the command vocabulary plus
// the unknown token, except those with end as predecessor or start as
// successor. Both unigram totals of the pair are incremented too. It returns
// the vocabulary used.
func smoothCommands(seq1 *counter, seq2 *nestedCounter, tokens Tokens) []string {
	cmds := seq1.vocabulary(tokens.Unknown)
	for _, c1 := range cmds {
		for _, c2 := range cmds {
			if c1 == tokens.End || c2 == tokens.Start {
				continue
			}
			seq1.inc(c1)
			seq2.inc(c1, c2)
			seq1.inc(c2)
		}
	}
	return cmds
}

// smoothConditional adds one to (given, item) for every item already
// observed with given, and to (given, unk) for every given in context. The
// item's unigram count is incremented alongside. It returns the item
// vocabulary used.
func smoothConditional(items *counter, joint *nestedCounter, context []string, unk string) []string {
	vocab := items.vocabulary(unk)
	for _, given := range context {
		for _, item := range vocab {
			if item == unk || joint.has(given, item) {
				items.inc(item)
				joint.inc(given, item)
			}
		}
	}
	return vocab
}
