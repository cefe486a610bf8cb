package sequence

import "sort"

// Thresholds for deciding whether a param's values are categorical.
const (
	// MaxDistinctValues is the largest number of distinct values a
	// categorical param may take.
	MaxDistinctValues = 20

	// MinParamOccurrences is the fewest occurrences needed to trust the
	// param's value distribution.
	MinParamOccurrences = 20

	// MaxFillRatio is the largest percentage of distinct values relative
	// to occurrences.
	MaxFillRatio = 10.0
)

// ParamSet is a set of param names.
type ParamSet map[string]struct{}

// Contains reports whether p is in the set.
func (s ParamSet) Contains(p string) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members in sorted order.
func (s ParamSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ModellableParams uses rough heuristics to decide which params take
// categorical values. A param qualifies when it has at most
// MaxDistinctValues distinct values, at least MinParamOccurrences
// occurrences, and a fill ratio 100*distinct/occurrences of at most
// MaxFillRatio. Values of other params look like free text or identifiers
// and are left out of scoring.
func ModellableParams(paramCounts Table, paramValueCounts Matrix) ParamSet {
	set := make(ParamSet)
	if paramCounts.IsZero() || paramValueCounts.IsZero() {
		return set
	}
	for _, p := range paramValueCounts.Keys() {
		distinct := float64(paramValueCounts.Row(p).Len())
		n := paramCounts.Get(p)
		if n <= 0 {
			continue
		}
		fill := 100 * distinct / n
		if distinct <= MaxDistinctValues && n >= MinParamOccurrences && fill <= MaxFillRatio {
			set[p] = struct{}{}
		}
	}
	return set
}
