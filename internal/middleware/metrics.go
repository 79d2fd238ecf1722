package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runledger/runledger/internal/telemetry"
)

// noRoute labels requests that matched no route so arbitrary URLs cannot inflate cardinality.
const noRoute = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds
// for every request, labelled by the matched route template (c.FullPath), so
// /api/v1/test-runs/:run_id is one series regardless of the run id.
//
// Register after gin.Recovery and RequestIDMiddleware so the final status is observed.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRoute
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
