// Package api wires together all HTTP routes of the runledger backend.
//
// Route groups:
//   - /health, /ready and /version are public.
//   - /api/v1/organizations and /api/v1/projects are the provisioning API and
//     require the admin key.
//   - /api/v1/test-runs is the ingestion API and requires a project token; the
//     token alone decides which project a run belongs to.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/runledger/runledger/internal/api/admin"
	"github.com/runledger/runledger/internal/api/runs"
	"github.com/runledger/runledger/internal/audit"
	"github.com/runledger/runledger/internal/config"
	"github.com/runledger/runledger/internal/db"
	"github.com/runledger/runledger/internal/db/repositories"
	"github.com/runledger/runledger/internal/middleware"
	"github.com/runledger/runledger/internal/services"
)

// Version is the build version reported by /version. Set with
// -ldflags "-X github.com/runledger/runledger/internal/api.Version=v1.2.3".
var Version = "dev"

// Services bundles the business services the router exposes.
type Services struct {
	Tenants   *services.TenantService
	Tokens    *services.TokenService
	Ingestion *services.IngestionService
}

// NewServices builds the services on PostgreSQL-backed repositories.
func NewServices(cfg *config.Config, database *sql.DB) *Services {
	sqlxDB := db.Wrap(database)
	projects := repositories.NewProjectRepository(sqlxDB)

	return &Services{
		Tenants:   services.NewTenantService(repositories.NewOrganizationRepository(database), projects),
		Tokens:    services.NewTokenService(repositories.NewAPITokenRepository(database), projects, cfg.Auth.Tokens.Prefix),
		Ingestion: services.NewIngestionService(repositories.NewTestRunRepository(sqlxDB)),
	}
}

// Pinger reports whether the database is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// BackgroundServices holds resources that must be released during graceful
// shutdown. The caller (cmd/server) calls Shutdown after the HTTP server stops.
type BackgroundServices struct {
	memoryLimiter *middleware.MemoryRateLimiter
	redisClient   *redis.Client
	auditShipper  *audit.MultiShipper
}

// Shutdown stops background goroutines and closes connections.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.memoryLimiter != nil {
		bg.memoryLimiter.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the gin router on a live database.
func NewRouter(cfg *config.Config, database *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	limiter, bg := newRateLimiter(cfg.Security.RateLimiting)

	var shipper audit.Shipper
	if cfg.Audit.Enabled {
		ms, err := newAuditShipper(cfg.Audit)
		if err != nil {
			bg.Shutdown()
			return nil, nil, err
		}
		bg.auditShipper = ms
		shipper = ms
		slog.Info("audit logging enabled", "shippers", ms.Len())
	}

	return newEngine(cfg, database, NewServices(cfg, database), limiter, shipper), bg, nil
}

// newAuditShipper translates the audit configuration into shippers.
func newAuditShipper(ac config.AuditConfig) (*audit.MultiShipper, error) {
	configs := make([]audit.ShipperConfig, 0, len(ac.Shippers))
	for _, sc := range ac.Shippers {
		out := audit.ShipperConfig{Enabled: sc.Enabled, Type: sc.Type}
		if sc.Webhook != nil {
			out.Webhook = &audit.WebhookConfig{
				URL:     sc.Webhook.URL,
				Headers: sc.Webhook.Headers,
				Timeout: time.Duration(sc.Webhook.TimeoutSecs) * time.Second,
			}
		}
		if sc.File != nil {
			out.File = &audit.FileConfig{
				Path:       sc.File.Path,
				MaxSizeMB:  sc.File.MaxSizeMB,
				MaxBackups: sc.File.MaxBackups,
			}
		}
		configs = append(configs, out)
	}
	return audit.NewMultiShipper(configs)
}

// newRateLimiter returns nil when rate limiting is disabled.
func newRateLimiter(rl config.RateLimitingConfig) (middleware.Limiter, *BackgroundServices) {
	bg := &BackgroundServices{}
	if !rl.Enabled {
		return nil, bg
	}

	limits := middleware.RateLimitConfig{
		RequestsPerMinute: rl.RequestsPerMinute,
		BurstSize:         rl.Burst,
		CleanupInterval:   5 * time.Minute,
	}

	if rl.RedisAddr != "" {
		bg.redisClient = redis.NewClient(&redis.Options{
			Addr:     rl.RedisAddr,
			Password: rl.RedisPassword,
			DB:       rl.RedisDB,
		})
		slog.Info("rate limiting backed by redis", "addr", rl.RedisAddr)
		return middleware.NewRedisRateLimiter(bg.redisClient, limits), bg
	}

	bg.memoryLimiter = middleware.NewMemoryRateLimiter(limits)
	slog.Info("rate limiting in process memory")
	return bg.memoryLimiter, bg
}

// newEngine registers middleware and routes. limiter and shipper may be nil.
func newEngine(cfg *config.Config, pinger Pinger, svc *Services, limiter middleware.Limiter, shipper audit.Shipper) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(pinger))
	router.GET("/ready", readinessHandler(pinger))
	router.GET("/version", versionHandler())

	// Rate limiting runs after authentication so buckets are per project on
	// ingestion routes; admin routes have no project and fall back to the client IP.
	limit := func(group *gin.RouterGroup) {
		if limiter != nil {
			group.Use(middleware.RateLimitMiddleware(limiter))
		}
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.BodyLimitMiddleware(cfg.Server.MaxBodyBytes))

	orgHandlers := admin.NewOrganizationHandlers(svc.Tenants)
	projectHandlers := admin.NewProjectHandlers(svc.Tenants, svc.Tokens)

	adminGroup := v1.Group("")
	if shipper != nil {
		adminGroup.Use(middleware.AuditMiddleware(shipper, cfg.Audit.LogFailedRequests))
	}
	adminGroup.Use(middleware.AdminAuthMiddleware(cfg.Auth.Admin))
	limit(adminGroup)
	{
		adminGroup.POST("/organizations", orgHandlers.CreateOrganizationHandler())
		adminGroup.GET("/organizations/:id", orgHandlers.GetOrganizationHandler())
		adminGroup.POST("/organizations/:id/projects", projectHandlers.CreateProjectHandler())
		adminGroup.GET("/organizations/:id/projects", projectHandlers.ListProjectsHandler())
		adminGroup.GET("/projects/:id", projectHandlers.GetProjectHandler())
		adminGroup.POST("/projects/:id/tokens", projectHandlers.IssueTokenHandler())
	}

	runHandlers := runs.NewHandlers(svc.Ingestion)

	runsGroup := v1.Group("/test-runs")
	runsGroup.Use(middleware.TokenAuthMiddleware(svc.Tokens))
	limit(runsGroup)
	{
		runsGroup.POST("", runHandlers.IngestHandler())
		runsGroup.GET("/:run_id", runHandlers.GetRunHandler())
	}

	return router
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(pinger Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := pinger.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler gates traffic on database connectivity, with a short
// timeout so a hung database fails the probe instead of stalling it.
func readinessHandler(pinger Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := pinger.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": gin.H{"database": "unhealthy"},
				"error":  "database not ready",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": gin.H{"database": "healthy"},
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one structured slog record per request. The level
// follows the status: 5xx at error, 4xx at warn, everything else at info.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", status),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		}
		if projectID := middleware.ProjectID(c); projectID != "" {
			attrs = append(attrs, slog.String("project_id", projectID))
		}

		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, OPTIONS"
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		wildcard := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" {
				allowed, wildcard = true, true
				break
			}
			if allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if wildcard || origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
