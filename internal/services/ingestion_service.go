package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/runledger/runledger/internal/apperr"
	"github.com/runledger/runledger/internal/db/models"
	"github.com/runledger/runledger/internal/db/repositories"
	"github.com/runledger/runledger/internal/telemetry"
	"github.com/runledger/runledger/internal/validation"
)

// IngestInput is an untrusted test run payload.
type IngestInput = validation.TestRunInput

// IngestResult reports whether this call created the run. Run is the stored
// record either way; on a replay it is the first writer's record, not the input.
type IngestResult struct {
	Created bool            `json:"created"`
	Run     *models.TestRun `json:"test_run"`
}

// IngestionService stores test runs idempotently on (project, run_id).
type IngestionService struct {
	runs TestRunStore
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(runs TestRunStore) *IngestionService {
	return &IngestionService{runs: runs}
}

// Ingest validates in and stores it for projectID unless a run with the same
// run_id already exists for that project, in which case the existing run is
// returned unchanged.
//
// The insert is attempted unconditionally; the unique constraint on
// (project_id, run_id) arbitrates concurrent duplicates, and only the loser of
// that race reads back the winner's row.
func (s *IngestionService) Ingest(ctx context.Context, projectID string, in IngestInput) (*IngestResult, error) {
	valid, err := validation.ValidateTestRun(in)
	if err != nil {
		telemetry.TestRunIngestionsTotal.WithLabelValues(telemetry.OutcomeValidationFailed).Inc()
		return nil, err
	}

	run := &models.TestRun{
		ProjectID:  projectID,
		RunID:      valid.RunID,
		Status:     valid.Status,
		DurationMs: valid.DurationMs,
		Timestamp:  valid.Timestamp,
	}

	outcome, err := s.runs.Insert(ctx, run)
	switch outcome {
	case repositories.WriteCreated:
		telemetry.TestRunIngestionsTotal.WithLabelValues(telemetry.OutcomeCreated).Inc()
		slog.Debug("test run created", "project_id", projectID, "run_id", run.RunID)
		return &IngestResult{Created: true, Run: run}, nil

	case repositories.WriteDuplicate:
		existing, err := s.runs.GetByProjectAndRunID(ctx, projectID, run.RunID)
		if err != nil {
			telemetry.TestRunIngestionsTotal.WithLabelValues(telemetry.OutcomeError).Inc()
			return nil, apperr.Internal("failed to load existing test run", err)
		}
		if existing == nil {
			// The constraint reported a duplicate that cannot be read back.
			telemetry.TestRunIngestionsTotal.WithLabelValues(telemetry.OutcomeError).Inc()
			return nil, apperr.Internal("inconsistent state",
				fmt.Errorf("duplicate reported for project %s run %s but no row found", projectID, run.RunID))
		}
		telemetry.TestRunIngestionsTotal.WithLabelValues(telemetry.OutcomeExisting).Inc()
		slog.Debug("test run already exists", "project_id", projectID, "run_id", run.RunID)
		return &IngestResult{Created: false, Run: existing}, nil
	}

	if repositories.ClassifyViolation(err).Is(repositories.ForeignKeyViolation, repositories.ConstraintTestRunProjectFK) {
		telemetry.TestRunIngestionsTotal.WithLabelValues(telemetry.OutcomeNotFound).Inc()
		return nil, apperr.NotFound("project not found")
	}
	telemetry.TestRunIngestionsTotal.WithLabelValues(telemetry.OutcomeError).Inc()
	return nil, apperr.Internal("failed to store test run", err)
}

// GetRun returns the run with runID belonging to projectID. Runs of other
// projects are reported as not found.
func (s *IngestionService) GetRun(ctx context.Context, projectID, runID string) (*models.TestRun, error) {
	canonical, err := validation.ValidateRunID(runID)
	if err != nil {
		return nil, apperr.NotFound("test run not found")
	}
	run, err := s.runs.GetByProjectAndRunID(ctx, projectID, canonical)
	if err != nil {
		return nil, apperr.Internal("failed to load test run", err)
	}
	if run == nil {
		return nil, apperr.NotFound("test run not found")
	}
	return run, nil
}
