// audit.go records provisioning calls to the configured audit shippers.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/runledger/runledger/internal/audit"
	"github.com/runledger/runledger/internal/safego"
	"github.com/runledger/runledger/internal/telemetry"
)

// auditRoute names the action and resource behind a provisioning route.
type auditRoute struct {
	action       string
	resourceType string
}

// auditedRoutes is keyed by method and gin route template.
var auditedRoutes = map[string]auditRoute{
	"POST /api/v1/organizations":              {"organization.created", "organization"},
	"POST /api/v1/organizations/:id/projects": {"project.created", "project"},
	"POST /api/v1/projects/:id/tokens":        {"token.issued", "api_token"},
}

// AuditMiddleware ships one audit entry per provisioning write. Read requests are
// never audited; rejected writes only when logFailed is set. It must run before
// AdminAuthMiddleware so rejected credentials are seen.
func AuditMiddleware(shipper audit.Shipper, logFailed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route, ok := auditedRoutes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}
		status := c.Writer.Status()
		if status >= http.StatusBadRequest && !logFailed {
			return
		}

		action := route.action
		if status >= http.StatusBadRequest {
			action += ".rejected"
		}

		entry := &audit.Entry{
			Timestamp:    time.Now().UTC(),
			Action:       action,
			ResourceType: route.resourceType,
			ResourceID:   c.GetString(audit.ResourceIDKey),
			ParentID:     c.Param("id"),
			AuthMethod:   c.GetString(AuthMethodKey),
			IPAddress:    c.ClientIP(),
			RequestID:    c.GetString(RequestIDKey),
			StatusCode:   status,
		}

		safego.Go("audit-ship", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shipper.Ship(ctx, entry); err != nil {
				telemetry.AuditEntriesTotal.WithLabelValues("failed").Inc()
				slog.Warn("failed to ship audit entry", "action", entry.Action, "request_id", entry.RequestID, "error", err)
				return
			}
			telemetry.AuditEntriesTotal.WithLabelValues("shipped").Inc()
		})
	}
}
