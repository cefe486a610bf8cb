package store

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string, created time.Time) *Run {
	return &Run{
		ID:            id,
		CreatedAt:     created,
		InputPath:     "/data/sessions.json",
		CorpusDigest:  "abc123",
		ModelType:     "commands",
		WindowLength:  3,
		UseStartEnd:   true,
		UseGeoMean:    false,
		SessionCount:  4,
		VocabularyLen: 7,
		DurationMs:    12,
	}
}

func TestOpenAndClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "subdir", "nested", "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestInsertAndGetRun(t *testing.T) {
	s := openTestStore(t)
	created := time.Unix(1700000000, 42)
	run := testRun("run-1", created)

	if err := s.InsertRun(run); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt mismatch: expected %v, got %v", created, got.CreatedAt)
	}
	got.CreatedAt = run.CreatedAt
	if *got != *run {
		t.Errorf("run mismatch:\nexpected %+v\ngot      %+v", *run, *got)
	}
}

func TestInsertRunDefaults(t *testing.T) {
	s := openTestStore(t)

	if err := s.InsertRun(&Run{}); err == nil {
		t.Error("expected error for empty id")
	}

	run := &Run{ID: "r"}
	if err := s.InsertRun(run); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}
	if run.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	if err := s.InsertRun(&Run{ID: "r"}); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)
	base := time.Unix(1700000000, 0)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.InsertRun(testRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("InsertRun failed: %v", err)
		}
	}

	runs, err := s.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "c" || runs[2].ID != "a" {
		t.Errorf("expected newest first, got %s..%s", runs[0].ID, runs[2].ID)
	}

	runs, err = s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestInsertAndQueryScores(t *testing.T) {
	s := openTestStore(t)
	if err := s.InsertRun(testRun("run-1", time.Now())); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	scores := []Score{
		{SessionID: "s0", Ordinal: 0, Likelihood: 0.25, WindowIndex: 1, Window: []WindowCmd{{Name: "ls"}}},
		{SessionID: "s1", Ordinal: 1, Likelihood: math.NaN(), WindowIndex: -1},
		{SessionID: "s2", Ordinal: 2, Likelihood: 0.01, WindowIndex: 0, Window: []WindowCmd{
			{Name: "rm", Params: map[string]string{"path": "/etc"}},
			{Name: "exit"},
		}},
		{SessionID: "s3", Ordinal: 3, Likelihood: 0.25, WindowIndex: 2, Window: []WindowCmd{{Name: "cd"}}},
	}
	if err := s.InsertScores("run-1", scores); err != nil {
		t.Fatalf("InsertScores failed: %v", err)
	}

	got, err := s.ScoresForRun("run-1", 0)
	if err != nil {
		t.Fatalf("ScoresForRun failed: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 scores, got %d", len(got))
	}

	wantOrder := []string{"s2", "s0", "s3", "s1"}
	for i, id := range wantOrder {
		if got[i].SessionID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].SessionID)
		}
		if got[i].RunID != "run-1" {
			t.Errorf("position %d: run id %q", i, got[i].RunID)
		}
	}

	if !math.IsNaN(got[3].Likelihood) {
		t.Errorf("expected NaN likelihood for unscored session, got %v", got[3].Likelihood)
	}
	if len(got[3].Window) != 0 || got[3].WindowIndex != -1 {
		t.Errorf("unexpected window for unscored session: %+v", got[3])
	}

	rare := got[0]
	if rare.Likelihood != 0.01 || len(rare.Window) != 2 || rare.Window[0].Params["path"] != "/etc" {
		t.Errorf("unexpected rarest score: %+v", rare)
	}

	top, err := s.ScoresForRun("run-1", 1)
	if err != nil {
		t.Fatalf("ScoresForRun failed: %v", err)
	}
	if len(top) != 1 || top[0].SessionID != "s2" {
		t.Errorf("expected only s2, got %+v", top)
	}
}

func TestInsertScoresIsAtomic(t *testing.T) {
	s := openTestStore(t)
	if err := s.InsertRun(testRun("run-1", time.Now())); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	dup := []Score{
		{SessionID: "a", Ordinal: 0, Likelihood: 0.5},
		{SessionID: "b", Ordinal: 0, Likelihood: 0.5},
	}
	if err := s.InsertScores("run-1", dup); err == nil {
		t.Fatal("expected error for duplicate ordinal")
	}

	got, err := s.ScoresForRun("run-1", 0)
	if err != nil {
		t.Fatalf("ScoresForRun failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no scores after failed insert, got %d", len(got))
	}
}

func TestInsertScoresUnknownRun(t *testing.T) {
	s := openTestStore(t)
	err := s.InsertScores("missing", []Score{{SessionID: "a", Likelihood: 1}})
	if err == nil {
		t.Error("expected foreign key error")
	}
}

func TestDeleteRun(t *testing.T) {
	s := openTestStore(t)
	if err := s.InsertRun(testRun("run-1", time.Now())); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}
	if err := s.InsertScores("run-1", []Score{{SessionID: "a", Likelihood: 0.1}}); err != nil {
		t.Fatalf("InsertScores failed: %v", err)
	}

	if err := s.DeleteRun("run-1"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := s.GetRun("run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	scores, err := s.ScoresForRun("run-1", 0)
	if err != nil {
		t.Fatalf("ScoresForRun failed: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("expected scores to cascade, got %d", len(scores))
	}

	if err := s.DeleteRun("run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMigrations(t *testing.T) {
	s := openTestStore(t)

	if err := ValidateSchema(s.DB()); err != nil {
		t.Fatalf("ValidateSchema failed: %v", err)
	}

	status, err := GetMigrationStatus(s.DB())
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if status.CurrentVersion != status.LatestVersion {
		t.Errorf("expected version %d, got %d", status.LatestVersion, status.CurrentVersion)
	}
	if len(status.Pending) != 0 {
		t.Errorf("expected no pending migrations, got %d", len(status.Pending))
	}

	if err := RollbackMigration(s.DB()); err != nil {
		t.Fatalf("RollbackMigration failed: %v", err)
	}
	status, err = GetMigrationStatus(s.DB())
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if len(status.Pending) != 1 {
		t.Errorf("expected 1 pending migration, got %d", len(status.Pending))
	}

	if err := MigrateDB(s.DB()); err != nil {
		t.Fatalf("MigrateDB failed: %v", err)
	}
	if err := s.InsertRun(testRun("after", time.Now())); err != nil {
		t.Errorf("InsertRun after re-migration failed: %v", err)
	}
}
