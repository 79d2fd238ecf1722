// test_run_repository.go implements TestRunRepository. Insert never checks for an
// existing row first: the (project_id, run_id) unique constraint decides the winner
// and the outcome is reported as a WriteOutcome.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/runledger/runledger/internal/db/models"
)

// WriteOutcome is the result of an idempotent insert.
type WriteOutcome int

const (
	// WriteFailed means the insert failed for a reason other than the idempotency key.
	WriteFailed WriteOutcome = iota
	// WriteCreated means this call inserted the row.
	WriteCreated
	// WriteDuplicate means a row with the same idempotency key already exists.
	WriteDuplicate
)

func (o WriteOutcome) String() string {
	switch o {
	case WriteCreated:
		return "created"
	case WriteDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

// TestRunRepository handles database operations for test runs
type TestRunRepository struct {
	db *sqlx.DB
}

// NewTestRunRepository creates a new test run repository
func NewTestRunRepository(db *sqlx.DB) *TestRunRepository {
	return &TestRunRepository{db: db}
}

// Insert attempts to store run. On WriteCreated run.ID and run.CreatedAt are filled in.
// A non-nil error is returned only together with WriteFailed.
func (r *TestRunRepository) Insert(ctx context.Context, run *models.TestRun) (WriteOutcome, error) {
	query := `
		INSERT INTO test_runs (project_id, run_id, status, duration_ms, "timestamp")
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		run.ProjectID,
		run.RunID,
		run.Status,
		run.DurationMs,
		run.Timestamp,
	).Scan(&run.ID, &run.CreatedAt)
	if err == nil {
		return WriteCreated, nil
	}

	if ClassifyViolation(err).Is(UniqueViolation, ConstraintTestRunIdempotency) {
		return WriteDuplicate, nil
	}
	return WriteFailed, fmt.Errorf("failed to insert test run: %w", err)
}

// GetByProjectAndRunID retrieves the run identified by the idempotency key.
// Returns nil, nil when absent.
func (r *TestRunRepository) GetByProjectAndRunID(ctx context.Context, projectID, runID string) (*models.TestRun, error) {
	var run models.TestRun
	query := `
		SELECT id, project_id, run_id, status, duration_ms, "timestamp", created_at
		FROM test_runs
		WHERE project_id = $1 AND run_id = $2
	`
	err := r.db.GetContext(ctx, &run, query, projectID, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get test run: %w", err)
	}
	return &run, nil
}

// CountByProject returns the number of runs stored for a project.
func (r *TestRunRepository) CountByProject(ctx context.Context, projectID string) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM test_runs WHERE project_id = $1`
	if err := r.db.GetContext(ctx, &n, query, projectID); err != nil {
		return 0, fmt.Errorf("failed to count test runs: %w", err)
	}
	return n, nil
}
