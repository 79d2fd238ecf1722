// Package admin implements the provisioning API: organizations, projects and
// project tokens. Every route is guarded by middleware.AdminAuthMiddleware.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/runledger/runledger/internal/api/respond"
	"github.com/runledger/runledger/internal/audit"
	"github.com/runledger/runledger/internal/services"
)

// nameRequest is the body of every create call in this package.
type nameRequest struct {
	Name string `json:"name"`
}

// OrganizationHandlers handles organization endpoints
type OrganizationHandlers struct {
	tenants *services.TenantService
}

// NewOrganizationHandlers creates a new OrganizationHandlers instance
func NewOrganizationHandlers(tenants *services.TenantService) *OrganizationHandlers {
	return &OrganizationHandlers{tenants: tenants}
}

// CreateOrganizationHandler creates an organization with a globally unique name.
// POST /api/v1/organizations
func (h *OrganizationHandlers) CreateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req nameRequest
		if err := respond.BindJSON(c, &req); err != nil {
			respond.Error(c, err)
			return
		}

		org, err := h.tenants.CreateOrganization(c.Request.Context(), req.Name)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.Set(audit.ResourceIDKey, org.ID)
		c.JSON(http.StatusCreated, gin.H{"organization": org})
	}
}

// GetOrganizationHandler retrieves an organization by ID
// GET /api/v1/organizations/:id
func (h *OrganizationHandlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.tenants.GetOrganization(c.Request.Context(), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"organization": org})
	}
}
