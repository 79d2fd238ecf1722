package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/runledger/runledger/internal/apperr"
	"github.com/runledger/runledger/internal/auth"
	"github.com/runledger/runledger/internal/db/models"
	"github.com/runledger/runledger/internal/db/repositories"
	"github.com/runledger/runledger/internal/telemetry"
)

// IssuedToken is returned exactly once, when a token is created. Token is the raw
// secret; it is not stored and cannot be recovered later.
type IssuedToken struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"token_id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenService issues project tokens and resolves presented tokens to projects.
type TokenService struct {
	tokens   TokenStore
	projects ProjectStore
	prefix   string
}

// NewTokenService creates a new token service. prefix is prepended to every issued token.
func NewTokenService(tokens TokenStore, projects ProjectStore, prefix string) *TokenService {
	return &TokenService{tokens: tokens, projects: projects, prefix: prefix}
}

// IssueToken creates a new token for an existing project.
func (s *TokenService) IssueToken(ctx context.Context, projectID string) (*IssuedToken, error) {
	if !isUUID(projectID) {
		telemetry.TenantProvisioningTotal.WithLabelValues("token", "not_found").Inc()
		return nil, apperr.NotFound("project not found")
	}
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		telemetry.TenantProvisioningTotal.WithLabelValues("token", "error").Inc()
		return nil, apperr.Internal("failed to look up project", err)
	}
	if project == nil {
		telemetry.TenantProvisioningTotal.WithLabelValues("token", "not_found").Inc()
		return nil, apperr.NotFound("project not found")
	}

	raw, hash, err := auth.GenerateToken(s.prefix)
	if err != nil {
		telemetry.TenantProvisioningTotal.WithLabelValues("token", "error").Inc()
		return nil, apperr.Internal("failed to generate token", err)
	}

	token := &models.APIToken{ProjectID: project.ID, TokenHash: hash}
	if err := s.tokens.Create(ctx, token); err != nil {
		v := repositories.ClassifyViolation(err)
		switch {
		case v.Is(repositories.UniqueViolation, repositories.ConstraintTokenHash):
			telemetry.TenantProvisioningTotal.WithLabelValues("token", "conflict").Inc()
			return nil, apperr.Conflict("token collision, retry the request")
		case v.Is(repositories.ForeignKeyViolation, repositories.ConstraintTokenProjectFK):
			telemetry.TenantProvisioningTotal.WithLabelValues("token", "not_found").Inc()
			return nil, apperr.NotFound("project not found")
		}
		telemetry.TenantProvisioningTotal.WithLabelValues("token", "error").Inc()
		return nil, apperr.Internal("failed to store token", err)
	}

	telemetry.TenantProvisioningTotal.WithLabelValues("token", "created").Inc()
	slog.Info("api token issued", "token_id", token.ID, "project_id", token.ProjectID)

	return &IssuedToken{
		Token:     raw,
		TokenID:   token.ID,
		ProjectID: token.ProjectID,
		CreatedAt: token.CreatedAt,
	}, nil
}

// ResolveToken maps a presented raw token to its project.
// ok is false when the token is unknown or malformed; err is reserved for
// storage failures so callers can tell "bad credentials" from "system down".
func (s *TokenService) ResolveToken(ctx context.Context, raw string) (projectID string, ok bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !auth.WellFormedToken(s.prefix, raw) {
		telemetry.TokenResolutionsTotal.WithLabelValues("miss").Inc()
		return "", false, nil
	}

	token, err := s.tokens.GetByHash(ctx, auth.HashToken(raw))
	if err != nil {
		telemetry.TokenResolutionsTotal.WithLabelValues("error").Inc()
		return "", false, apperr.Internal("failed to resolve token", err)
	}
	if token == nil {
		telemetry.TokenResolutionsTotal.WithLabelValues("miss").Inc()
		return "", false, nil
	}

	telemetry.TokenResolutionsTotal.WithLabelValues("ok").Inc()
	return token.ProjectID, true, nil
}
