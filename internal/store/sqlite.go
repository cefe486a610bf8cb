package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store represents the SQLite result store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for migration tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InsertRun records a run. A zero CreatedAt is set to now.
func (s *Store) InsertRun(r *Run) error {
	if r.ID == "" {
		return errors.New("insert run: empty id")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, created_at, corpus_digest, model_type, window_length, use_start_end, use_geo_mean,
			session_count, input_path, vocabulary_len, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UnixNano(), r.CorpusDigest, r.ModelType, r.WindowLength, r.UseStartEnd, r.UseGeoMean,
		r.SessionCount, r.InputPath, r.VocabularyLen, r.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// InsertScores inserts the scores of a run in a single transaction.
func (s *Store) InsertScores(runID string, scores []Score) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO scores (run_id, session_id, ordinal, likelihood, window_index, window_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, sc := range scores {
		window := sc.Window
		if window == nil {
			window = []WindowCmd{}
		}
		windowJSON, err := json.Marshal(window)
		if err != nil {
			return fmt.Errorf("marshal window: %w", err)
		}

		var likelihood sql.NullFloat64
		if !math.IsNaN(sc.Likelihood) {
			likelihood = sql.NullFloat64{Float64: sc.Likelihood, Valid: true}
		}

		if _, err := stmt.Exec(runID, sc.SessionID, sc.Ordinal, likelihood, sc.WindowIndex, string(windowJSON)); err != nil {
			return fmt.Errorf("insert score %d: %w", sc.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const runColumns = `id, created_at, corpus_digest, model_type, window_length, use_start_end, use_geo_mean,
	session_count, input_path, vocabulary_len, duration_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var createdAt int64
	if err := row.Scan(&r.ID, &createdAt, &r.CorpusDigest, &r.ModelType, &r.WindowLength, &r.UseStartEnd,
		&r.UseGeoMean, &r.SessionCount, &r.InputPath, &r.VocabularyLen, &r.DurationMs); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, createdAt)
	return &r, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// ScoresForRun returns the scores of a run, least likely first. Unscored
// sessions come last. A limit of zero or less returns every score.
func (s *Store) ScoresForRun(runID string, limit int) ([]Score, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`
		SELECT run_id, session_id, ordinal, likelihood, window_index, window_json
		FROM scores WHERE run_id = ?
		ORDER BY likelihood IS NULL, likelihood ASC, ordinal ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var scores []Score
	for rows.Next() {
		var sc Score
		var likelihood sql.NullFloat64
		var windowJSON string
		if err := rows.Scan(&sc.RunID, &sc.SessionID, &sc.Ordinal, &likelihood, &sc.WindowIndex, &windowJSON); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}

		sc.Likelihood = math.NaN()
		if likelihood.Valid {
			sc.Likelihood = likelihood.Float64
		}
		if err := json.Unmarshal([]byte(windowJSON), &sc.Window); err != nil {
			return nil, fmt.Errorf("unmarshal window: %w", err)
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

// DeleteRun removes a run and its scores.
func (s *Store) DeleteRun(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}
