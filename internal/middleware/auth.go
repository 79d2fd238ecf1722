// Package middleware provides the gin middleware of the runledger API.
//
// Ordering is fixed in internal/api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → BodyLimit → [Audit] → Auth → RateLimit → Handler
//
// Auth runs before the rate limiter on token routes so buckets are keyed by
// project rather than by client address.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/runledger/runledger/internal/api/respond"
	"github.com/runledger/runledger/internal/apperr"
	"github.com/runledger/runledger/internal/auth"
	"github.com/runledger/runledger/internal/config"
)

const (
	// ProjectIDKey holds the project resolved from a bearer token.
	ProjectIDKey = "project_id"
	// AuthMethodKey records which credential authenticated the request.
	AuthMethodKey = "auth_method"
)

// TokenResolver maps a raw project token to its project id.
// *services.TokenService satisfies it.
type TokenResolver interface {
	ResolveToken(ctx context.Context, raw string) (projectID string, ok bool, err error)
}

// TokenAuthMiddleware authenticates ingestion requests with a project token.
// Unknown, malformed and missing tokens are all answered with the same 401 so
// callers learn nothing about which tokens exist. A storage failure is a 500.
func TokenAuthMiddleware(resolver TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			respond.Error(c, apperr.Unauthorized("missing or malformed bearer token"))
			return
		}

		projectID, ok, err := resolver.ResolveToken(c.Request.Context(), raw)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if !ok {
			respond.Error(c, apperr.Unauthorized("invalid token"))
			return
		}

		c.Set(ProjectIDKey, projectID)
		c.Set(AuthMethodKey, "project_token")
		c.Next()
	}
}

// AdminAuthMiddleware guards the provisioning routes with the bcrypt-hashed
// admin key from auth.admin.key_hash. When the admin API is disabled every
// request is rejected.
func AdminAuthMiddleware(cfg config.AdminConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled || cfg.KeyHash == "" {
			respond.Error(c, apperr.Unauthorized("admin API is disabled"))
			return
		}

		key, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			respond.Error(c, apperr.Unauthorized("missing or malformed bearer token"))
			return
		}
		if !auth.ValidateAdminKey(key, cfg.KeyHash) {
			respond.Error(c, apperr.Unauthorized("invalid admin key"))
			return
		}

		c.Set(AuthMethodKey, "admin_key")
		c.Next()
	}
}

// ProjectID returns the project authenticated by TokenAuthMiddleware, or "".
func ProjectID(c *gin.Context) string {
	return c.GetString(ProjectIDKey)
}
