// Package store provides SQLite-based storage for scoring runs and their
// per-session results.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Run describes one training and scoring pass over a corpus.
type Run struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	InputPath     string    `json:"input_path"`
	CorpusDigest  string    `json:"corpus_digest"`
	ModelType     string    `json:"model_type"`
	WindowLength  int       `json:"window_length"`
	UseStartEnd   bool      `json:"use_start_end_tokens"`
	UseGeoMean    bool      `json:"use_geo_mean"`
	SessionCount  int       `json:"session_count"`
	VocabularyLen int       `json:"vocabulary_len"`
	DurationMs    int64     `json:"duration_ms"`
}

// Score is the rarest window found in one session of a run. A NaN
// Likelihood marks a session too short to hold a window.
type Score struct {
	RunID       string
	SessionID   string
	Ordinal     int
	Likelihood  float64
	WindowIndex int
	Window      []WindowCmd
}

// WindowCmd is the stored form of a command in the rarest window.
type WindowCmd struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}
