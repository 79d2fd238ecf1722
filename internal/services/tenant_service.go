package services

import (
	"context"
	"log/slog"

	"github.com/runledger/runledger/internal/apperr"
	"github.com/runledger/runledger/internal/db/models"
	"github.com/runledger/runledger/internal/db/repositories"
	"github.com/runledger/runledger/internal/telemetry"
	"github.com/runledger/runledger/internal/validation"
)

// TenantService manages the organization → project hierarchy.
type TenantService struct {
	orgs     OrganizationStore
	projects ProjectStore
}

// NewTenantService creates a new tenant service
func NewTenantService(orgs OrganizationStore, projects ProjectStore) *TenantService {
	return &TenantService{orgs: orgs, projects: projects}
}

// CreateOrganization creates an organization with a globally unique name.
func (s *TenantService) CreateOrganization(ctx context.Context, name string) (*models.Organization, error) {
	name, err := validation.ValidateName("organization", name)
	if err != nil {
		telemetry.TenantProvisioningTotal.WithLabelValues("organization", "invalid").Inc()
		return nil, err
	}

	org := &models.Organization{Name: name}
	if err := s.orgs.Create(ctx, org); err != nil {
		if repositories.ClassifyViolation(err).Is(repositories.UniqueViolation, repositories.ConstraintOrganizationName) {
			telemetry.TenantProvisioningTotal.WithLabelValues("organization", "conflict").Inc()
			return nil, apperr.Conflict("organization name already exists")
		}
		telemetry.TenantProvisioningTotal.WithLabelValues("organization", "error").Inc()
		return nil, apperr.Internal("failed to create organization", err)
	}

	telemetry.TenantProvisioningTotal.WithLabelValues("organization", "created").Inc()
	slog.Info("organization created", "organization_id", org.ID, "name", org.Name)
	return org, nil
}

// GetOrganization returns the organization with id or a not-found error.
func (s *TenantService) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	if !isUUID(id) {
		return nil, apperr.NotFound("organization not found")
	}
	org, err := s.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to look up organization", err)
	}
	if org == nil {
		return nil, apperr.NotFound("organization not found")
	}
	return org, nil
}

// CreateProject creates a project under an existing organization. Project names
// are unique within their organization only.
func (s *TenantService) CreateProject(ctx context.Context, organizationID, name string) (*models.Project, error) {
	name, err := validation.ValidateName("project", name)
	if err != nil {
		telemetry.TenantProvisioningTotal.WithLabelValues("project", "invalid").Inc()
		return nil, err
	}

	// Parent existence is checked before the write so a missing organization is
	// reported as such rather than as a constraint failure.
	if _, err := s.GetOrganization(ctx, organizationID); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			telemetry.TenantProvisioningTotal.WithLabelValues("project", "not_found").Inc()
		}
		return nil, err
	}

	project := &models.Project{OrganizationID: organizationID, Name: name}
	if err := s.projects.Create(ctx, project); err != nil {
		v := repositories.ClassifyViolation(err)
		switch {
		case v.Is(repositories.UniqueViolation, repositories.ConstraintProjectName):
			telemetry.TenantProvisioningTotal.WithLabelValues("project", "conflict").Inc()
			return nil, apperr.Conflict("project name already exists in this organization")
		case v.Is(repositories.ForeignKeyViolation, repositories.ConstraintProjectOrgFK):
			telemetry.TenantProvisioningTotal.WithLabelValues("project", "not_found").Inc()
			return nil, apperr.NotFound("organization not found")
		}
		telemetry.TenantProvisioningTotal.WithLabelValues("project", "error").Inc()
		return nil, apperr.Internal("failed to create project", err)
	}

	telemetry.TenantProvisioningTotal.WithLabelValues("project", "created").Inc()
	slog.Info("project created",
		"project_id", project.ID,
		"organization_id", project.OrganizationID,
		"name", project.Name)
	return project, nil
}

// GetProject returns the project with id or a not-found error.
func (s *TenantService) GetProject(ctx context.Context, id string) (*models.Project, error) {
	if !isUUID(id) {
		return nil, apperr.NotFound("project not found")
	}
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to look up project", err)
	}
	if project == nil {
		return nil, apperr.NotFound("project not found")
	}
	return project, nil
}

// ListProjects returns the projects of an existing organization.
func (s *TenantService) ListProjects(ctx context.Context, organizationID string) ([]*models.Project, error) {
	if _, err := s.GetOrganization(ctx, organizationID); err != nil {
		return nil, err
	}
	projects, err := s.projects.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, apperr.Internal("failed to list projects", err)
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	return projects, nil
}
