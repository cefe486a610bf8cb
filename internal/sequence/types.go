// Package sequence models sessions of commands as a smoothed Markov chain and
// scores sessions, or sliding windows within them, by likelihood.
//
// A model is trained in three stages: a counting pass over the training
// sessions (with Laplace smoothing), derivation of probability tables from the
// smoothed counts, and, when parameter values are modelled, classification of
// which parameters carry categorical values. The resulting tables are
// read-only and may be shared by concurrent scoring calls.
package sequence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Default sentinel tokens.
const (
	DefaultStartToken   = "##START##"
	DefaultEndToken     = "##END##"
	DefaultUnknownToken = "##UNK##"
)

// Cmd is a single command in a session together with its parameters.
// For parameter-only commands the values are empty strings.
type Cmd struct {
	Name   string
	Params map[string]string
}

// NewCmd builds a command carrying a set of parameters without values.
func NewCmd(name string, params ...string) Cmd {
	m := make(map[string]string, len(params))
	for _, p := range params {
		m[p] = ""
	}
	return Cmd{Name: name, Params: m}
}

// NewCmdWithValues builds a command carrying parameters and their values.
// The map is copied.
func NewCmdWithValues(name string, params map[string]string) Cmd {
	m := make(map[string]string, len(params))
	for k, v := range params {
		m[k] = v
	}
	return Cmd{Name: name, Params: m}
}

// ParamNames returns the command's parameter names in sorted order.
func (c Cmd) ParamNames() []string {
	names := make([]string, 0, len(c.Params))
	for p := range c.Params {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// HasParam reports whether the command carries parameter p.
func (c Cmd) HasParam(p string) bool {
	_, ok := c.Params[p]
	return ok
}

// String renders the command as Cmd(name='X', params={...}).
func (c Cmd) String() string {
	parts := make([]string, 0, len(c.Params))
	for _, p := range c.ParamNames() {
		if v := c.Params[p]; v != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", p, v))
		} else {
			parts = append(parts, p)
		}
	}
	return fmt.Sprintf("Cmd(name='%s', params={%s})", c.Name, strings.Join(parts, ", "))
}

// Session is the ordered activity of a single actor.
type Session []Cmd

// Names returns the command names of the session in order.
func (s Session) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Tokens are the sentinel vocabulary entries. They must be distinct and must
// not collide with real command, parameter or value names.
type Tokens struct {
	Start   string `toml:"start" json:"start" yaml:"start"`
	End     string `toml:"end" json:"end" yaml:"end"`
	Unknown string `toml:"unknown" json:"unknown" yaml:"unknown"`
}

// DefaultTokens returns ##START##, ##END## and ##UNK##.
func DefaultTokens() Tokens {
	return Tokens{
		Start:   DefaultStartToken,
		End:     DefaultEndToken,
		Unknown: DefaultUnknownToken,
	}
}

// Validate checks that all tokens are set and pairwise distinct.
func (t Tokens) Validate() error {
	if t.Start == "" || t.End == "" || t.Unknown == "" {
		return ErrTokenRequired
	}
	if t.Start == t.End || t.Start == t.Unknown || t.End == t.Unknown {
		return fmt.Errorf("tokens must be distinct: start=%q end=%q unknown=%q", t.Start, t.End, t.Unknown)
	}
	return nil
}

// ModelType selects which dimensions of a session are modelled.
type ModelType int

const (
	// ModelCommands models command sequences only.
	ModelCommands ModelType = iota
	// ModelParams also models which parameters accompany each command.
	ModelParams
	// ModelValues also models the values of categorical parameters.
	ModelValues
)

// String returns the configuration name of the model type.
func (m ModelType) String() string {
	switch m {
	case ModelCommands:
		return "commands"
	case ModelParams:
		return "params"
	case ModelValues:
		return "values"
	default:
		return "unknown"
	}
}

// ParseModelType parses "commands", "params" or "values".
func ParseModelType(s string) (ModelType, error) {
	switch strings.ToLower(s) {
	case "commands", "cmds":
		return ModelCommands, nil
	case "params":
		return ModelParams, nil
	case "values":
		return ModelValues, nil
	default:
		return ModelCommands, fmt.Errorf("unknown model type: %s", s)
	}
}

// DetectModelType picks the richest model type the sessions support: values
// if any parameter carries a non-empty value, params if any command carries
// parameters, commands otherwise.
func DetectModelType(sessions []Session) ModelType {
	mt := ModelCommands
	for _, s := range sessions {
		for _, c := range s {
			for _, v := range c.Params {
				if v != "" {
					return ModelValues
				}
				mt = ModelParams
			}
		}
	}
	return mt
}

// Errors returned by the sequence package.
var (
	// ErrEmptyTable is returned when a table is built from an empty map.
	ErrEmptyTable = errors.New("table is empty")

	// ErrMissingUnknown is returned when the unknown token is absent from a
	// table or from one of its rows.
	ErrMissingUnknown = errors.New("unknown token missing from table")

	// ErrZeroMass is returned when a table or row has no probability mass.
	ErrZeroMass = errors.New("zero probability mass")

	// ErrTokenRequired is returned when a start or end token is requested
	// but not supplied.
	ErrTokenRequired = errors.New("sentinel token required")

	// ErrInvalidWindowLength is returned for window lengths below one.
	ErrInvalidWindowLength = errors.New("window length must be positive")

	// ErrNotTrained is returned when scoring a model before Train.
	ErrNotTrained = errors.New("model has not been trained")
)
