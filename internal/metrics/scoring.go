package metrics

import (
	"time"
)

// Scoring bundles the metrics recorded by a scoring run.
type Scoring struct {
	registry *Registry

	SessionsTrained  *Counter
	SessionsScored   *Counter
	SessionsUnscored *Counter
	RunsTotal        *Counter
	ErrorsTotal      *Counter

	VocabularyCommands *Gauge
	VocabularyParams   *Gauge
	VocabularyValues   *Gauge
	RarestLikelihood   *Gauge
	LastRunTimestamp   *Gauge
	Uptime             *Gauge

	TrainDuration *Histogram
	ScoreDuration *Histogram

	startTime time.Time
}

// NewScoring registers the scoring metrics on registry, or on the default
// registry if nil.
func NewScoring(registry *Registry) *Scoring {
	if registry == nil {
		registry = Default()
	}

	return &Scoring{
		registry: registry,

		SessionsTrained: registry.RegisterCounter(
			"sessions_trained_total", "Sessions in training corpora", nil),
		SessionsScored: registry.RegisterCounter(
			"sessions_scored_total", "Sessions with a rarest window", nil),
		SessionsUnscored: registry.RegisterCounter(
			"sessions_unscored_total", "Sessions too short for the window length", nil),
		RunsTotal: registry.RegisterCounter(
			"runs_total", "Completed scoring runs", nil),
		ErrorsTotal: registry.RegisterCounter(
			"errors_total", "Failed scoring runs", nil),

		VocabularyCommands: registry.RegisterGauge(
			"vocabulary_commands", "Distinct commands in the last model, sentinels included", nil),
		VocabularyParams: registry.RegisterGauge(
			"vocabulary_params", "Distinct params in the last model", nil),
		VocabularyValues: registry.RegisterGauge(
			"vocabulary_values", "Distinct values in the last model", nil),
		RarestLikelihood: registry.RegisterGauge(
			"rarest_likelihood", "Lowest rarest-window likelihood of the last run", nil),
		LastRunTimestamp: registry.RegisterGauge(
			"last_run_timestamp_seconds", "Unix time the last run finished", nil),
		Uptime: registry.RegisterGauge(
			"uptime_seconds", "Seconds since the process started", nil),

		TrainDuration: registry.RegisterHistogram(
			"train_duration_seconds", "Model training duration", nil, DurationBuckets),
		ScoreDuration: registry.RegisterHistogram(
			"score_duration_seconds", "Rarest-window scoring duration", nil, DurationBuckets),

		startTime: time.Now(),
	}
}

// Registry returns the registry the bundle is registered on.
func (s *Scoring) Registry() *Registry {
	return s.registry
}

// RunStats summarises a finished run.
type RunStats struct {
	Trained    int
	Scored     int
	Unscored   int
	Commands   int
	Params     int
	Values     int
	Rarest     float64 // NaN if nothing was scored
	FinishedAt time.Time
}

// ObserveRun records the outcome of a successful run.
func (s *Scoring) ObserveRun(st RunStats) {
	s.RunsTotal.Inc()
	s.SessionsTrained.Add(uint64(st.Trained))
	s.SessionsScored.Add(uint64(st.Scored))
	s.SessionsUnscored.Add(uint64(st.Unscored))

	s.VocabularyCommands.Set(float64(st.Commands))
	s.VocabularyParams.Set(float64(st.Params))
	s.VocabularyValues.Set(float64(st.Values))
	s.RarestLikelihood.Set(st.Rarest)

	finished := st.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	s.LastRunTimestamp.Set(float64(finished.Unix()))
	s.UpdateUptime()
}

// RecordError counts a failed run.
func (s *Scoring) RecordError() {
	s.ErrorsTotal.Inc()
}

// UpdateUptime refreshes the uptime gauge.
func (s *Scoring) UpdateUptime() {
	s.Uptime.Set(time.Since(s.startTime).Seconds())
}
