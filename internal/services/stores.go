// Package services implements the business rules of runledger: the tenant hierarchy,
// the project token authority, and idempotent test run ingestion.
//
// Services depend on the narrow store interfaces below rather than on concrete
// repositories so tests can substitute in-memory stores (see servicetest). Every
// error a service returns is an *apperr.Error; storage detail is wrapped as the
// cause of an internal error and never becomes part of a client-facing message.
package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/runledger/runledger/internal/db/models"
	"github.com/runledger/runledger/internal/db/repositories"
)

// OrganizationStore persists organizations.
type OrganizationStore interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

// ProjectStore persists projects.
type ProjectStore interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*models.Project, error)
}

// TokenStore persists project token hashes.
type TokenStore interface {
	Create(ctx context.Context, token *models.APIToken) error
	GetByHash(ctx context.Context, tokenHash string) (*models.APIToken, error)
}

// TestRunStore persists test runs with insert-first idempotency.
type TestRunStore interface {
	Insert(ctx context.Context, run *models.TestRun) (repositories.WriteOutcome, error)
	GetByProjectAndRunID(ctx context.Context, projectID, runID string) (*models.TestRun, error)
}

var (
	_ OrganizationStore = (*repositories.OrganizationRepository)(nil)
	_ ProjectStore      = (*repositories.ProjectRepository)(nil)
	_ TokenStore        = (*repositories.APITokenRepository)(nil)
	_ TestRunStore      = (*repositories.TestRunRepository)(nil)
)

// isUUID reports whether s is a canonical hyphenated UUID. Identifiers that fail
// this check cannot name an existing row, so lookups short-circuit to not found.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
