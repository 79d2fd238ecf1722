package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/runledger/runledger/internal/db/models"
)

var testRunCols = []string{"id", "project_id", "run_id", "status", "duration_ms", "timestamp", "created_at"}

const sampleRunID = "770e8400-e29b-41d4-a716-446655440002"

func newTestRunRepo(t *testing.T) (*TestRunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTestRunRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleRun() *models.TestRun {
	return &models.TestRun{
		ProjectID:  "proj-1",
		RunID:      sampleRunID,
		Status:     models.StatusPassed,
		DurationMs: 1234,
		Timestamp:  time.Date(2026, 1, 12, 10, 10, 0, 0, time.UTC),
	}
}

// ---------------------------------------------------------------------------
// Insert
// ---------------------------------------------------------------------------

func TestTestRunInsert_Created(t *testing.T) {
	repo, mock := newTestRunRepo(t)
	run := sampleRun()
	mock.ExpectQuery("INSERT INTO test_runs").
		WithArgs(run.ProjectID, run.RunID, run.Status, run.DurationMs, run.Timestamp).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("run-row-1", time.Now()))

	outcome, err := repo.Insert(context.Background(), run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != WriteCreated {
		t.Errorf("outcome = %v, want created", outcome)
	}
	if run.ID != "run-row-1" {
		t.Errorf("ID = %q", run.ID)
	}
}

func TestTestRunInsert_Duplicate(t *testing.T) {
	repo, mock := newTestRunRepo(t)
	mock.ExpectQuery("INSERT INTO test_runs").
		WillReturnError(&pq.Error{Code: "23505", Constraint: ConstraintTestRunIdempotency})

	outcome, err := repo.Insert(context.Background(), sampleRun())
	if err != nil {
		t.Fatalf("duplicate must not be an error, got %v", err)
	}
	if outcome != WriteDuplicate {
		t.Errorf("outcome = %v, want duplicate", outcome)
	}
}

func TestTestRunInsert_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"missing project", &pq.Error{Code: "23503", Constraint: ConstraintTestRunProjectFK}},
		{"other unique constraint", &pq.Error{Code: "23505", Constraint: "test_runs_pkey"}},
		{"check constraint", &pq.Error{Code: "23514", Constraint: "test_runs_status_check"}},
		{"connection error", errDB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRunRepo(t)
			mock.ExpectQuery("INSERT INTO test_runs").WillReturnError(tt.err)

			outcome, err := repo.Insert(context.Background(), sampleRun())
			if outcome != WriteFailed {
				t.Errorf("outcome = %v, want failed", outcome)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("expected wrapped cause, got %v", err)
			}
		})
	}
}

func TestTestRunInsert_ForeignKeyIsClassified(t *testing.T) {
	repo, mock := newTestRunRepo(t)
	mock.ExpectQuery("INSERT INTO test_runs").
		WillReturnError(&pq.Error{Code: "23503", Constraint: ConstraintTestRunProjectFK})

	_, err := repo.Insert(context.Background(), sampleRun())
	if !ClassifyViolation(err).Is(ForeignKeyViolation, ConstraintTestRunProjectFK) {
		t.Errorf("expected foreign key violation, got %+v", ClassifyViolation(err))
	}
}

// ---------------------------------------------------------------------------
// GetByProjectAndRunID / CountByProject
// ---------------------------------------------------------------------------

func TestTestRunGetByProjectAndRunID(t *testing.T) {
	ts := time.Date(2026, 1, 12, 10, 10, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		repo, mock := newTestRunRepo(t)
		mock.ExpectQuery("SELECT.*FROM test_runs.*WHERE project_id = \\$1 AND run_id = \\$2").
			WithArgs("proj-1", sampleRunID).
			WillReturnRows(sqlmock.NewRows(testRunCols).
				AddRow("row-1", "proj-1", sampleRunID, "passed", int64(1234), ts, time.Now()))

		run, err := repo.GetByProjectAndRunID(context.Background(), "proj-1", sampleRunID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run == nil {
			t.Fatal("expected run, got nil")
		}
		if run.Status != "passed" || run.DurationMs != 1234 || !run.Timestamp.Equal(ts) {
			t.Errorf("got %+v", run)
		}
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newTestRunRepo(t)
		mock.ExpectQuery("SELECT.*FROM test_runs").
			WillReturnRows(sqlmock.NewRows(testRunCols))

		run, err := repo.GetByProjectAndRunID(context.Background(), "proj-1", sampleRunID)
		if err != nil || run != nil {
			t.Errorf("got %+v, %v; want nil, nil", run, err)
		}
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newTestRunRepo(t)
		mock.ExpectQuery("SELECT.*FROM test_runs").WillReturnError(errDB)

		if _, err := repo.GetByProjectAndRunID(context.Background(), "proj-1", sampleRunID); !errors.Is(err, errDB) {
			t.Errorf("expected wrapped errDB, got %v", err)
		}
	})
}

func TestTestRunCountByProject(t *testing.T) {
	repo, mock := newTestRunRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM test_runs").
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	n, err := repo.CountByProject(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestWriteOutcomeString(t *testing.T) {
	if WriteCreated.String() != "created" || WriteDuplicate.String() != "duplicate" || WriteFailed.String() != "failed" {
		t.Error("unexpected WriteOutcome strings")
	}
}
