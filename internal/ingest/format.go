// Package ingest reads training and scoring sessions from files.
//
// Three input shapes are supported and the caller always names the one in
// use; nothing is inferred from content:
//
//   - sequence: a JSON array of sessions
//   - keyed:    a YAML or JSON mapping of session id to session
//   - tabular:  CSV rows of session_id, command and optional params
//
// In the sequence and keyed shapes a command is either a bare name or an
// object {"name": ..., "params": ...} where params is a list of names or a
// mapping of name to value.
package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"seqsentry/internal/sequence"
)

// Format names an input shape.
type Format int

const (
	// FormatSequence is a JSON array of sessions.
	FormatSequence Format = iota
	// FormatKeyed is a YAML or JSON mapping of session id to session.
	FormatKeyed
	// FormatTabular is CSV with one command per row.
	FormatTabular
)

// ErrUnknownFormat is returned for unrecognised format names or extensions.
var ErrUnknownFormat = errors.New("unknown input format")

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatSequence:
		return "sequence"
	case FormatKeyed:
		return "keyed"
	case FormatTabular:
		return "tabular"
	default:
		return "unknown"
	}
}

// ParseFormat parses "sequence", "keyed" or "tabular".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequence", "json":
		return FormatSequence, nil
	case "keyed", "yaml":
		return FormatKeyed, nil
	case "tabular", "csv":
		return FormatTabular, nil
	default:
		return FormatSequence, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatFromPath maps a file extension to its conventional format:
// .json to sequence, .yaml/.yml to keyed and .csv to tabular.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatSequence, nil
	case ".yaml", ".yml":
		return FormatKeyed, nil
	case ".csv":
		return FormatTabular, nil
	default:
		return FormatSequence, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Record is a session together with its identifier.
type Record struct {
	ID      string
	Session sequence.Session
}

// Sessions returns the sessions of records in order.
func Sessions(records []Record) []sequence.Session {
	out := make([]sequence.Session, len(records))
	for i, r := range records {
		out[i] = r.Session
	}
	return out
}
