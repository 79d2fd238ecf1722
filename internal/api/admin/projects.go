package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/runledger/runledger/internal/api/respond"
	"github.com/runledger/runledger/internal/audit"
	"github.com/runledger/runledger/internal/services"
)

// tokenNotice accompanies every freshly issued token.
const tokenNotice = "Store this token now. It cannot be retrieved again."

// ProjectHandlers handles project and token endpoints
type ProjectHandlers struct {
	tenants *services.TenantService
	tokens  *services.TokenService
}

// NewProjectHandlers creates a new ProjectHandlers instance
func NewProjectHandlers(tenants *services.TenantService, tokens *services.TokenService) *ProjectHandlers {
	return &ProjectHandlers{tenants: tenants, tokens: tokens}
}

// CreateProjectHandler creates a project inside an existing organization.
// POST /api/v1/organizations/:id/projects
func (h *ProjectHandlers) CreateProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req nameRequest
		if err := respond.BindJSON(c, &req); err != nil {
			respond.Error(c, err)
			return
		}

		project, err := h.tenants.CreateProject(c.Request.Context(), c.Param("id"), req.Name)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.Set(audit.ResourceIDKey, project.ID)
		c.JSON(http.StatusCreated, gin.H{"project": project})
	}
}

// ListProjectsHandler lists an organization's projects ordered by name.
// GET /api/v1/organizations/:id/projects
func (h *ProjectHandlers) ListProjectsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projects, err := h.tenants.ListProjects(c.Request.Context(), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"projects": projects})
	}
}

// GetProjectHandler retrieves a project by ID
// GET /api/v1/projects/:id
func (h *ProjectHandlers) GetProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		project, err := h.tenants.GetProject(c.Request.Context(), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"project": project})
	}
}

// IssueTokenHandler issues a new project token. The raw token appears in this
// response and nowhere else.
// POST /api/v1/projects/:id/tokens
func (h *ProjectHandlers) IssueTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		issued, err := h.tokens.IssueToken(c.Request.Context(), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.Set(audit.ResourceIDKey, issued.TokenID)
		c.JSON(http.StatusCreated, gin.H{
			"token":      issued.Token,
			"token_id":   issued.TokenID,
			"project_id": issued.ProjectID,
			"created_at": issued.CreatedAt,
			"notice":     tokenNotice,
		})
	}
}
