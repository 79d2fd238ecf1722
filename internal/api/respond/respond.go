// Package respond renders service results and errors as HTTP responses.
// It is the only place an apperr.Kind becomes a status code.
package respond

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runledger/runledger/internal/apperr"
)

// RequestIDKey is the gin.Context key holding the request identifier.
const RequestIDKey = "request_id"

// CodeRateLimited is the error code for 429 responses.
const CodeRateLimited = "rate_limited"

// ErrorBody is the envelope of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error aborts the request with the error envelope for err.
// Internal errors are logged with their cause; the client only sees a generic message.
func Error(c *gin.Context, err error) {
	e := apperr.As(err)
	requestID := c.GetString(RequestIDKey)

	message := e.Message
	if e.Kind == apperr.KindInternal {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"error", err,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", requestID,
		)
		message = "internal server error"
	}

	c.AbortWithStatusJSON(StatusFor(e.Kind), ErrorBody{Error: ErrorDetail{
		Code:      e.Kind.String(),
		Message:   message,
		Details:   e.Details,
		RequestID: requestID,
	}})
}

// RateLimited aborts the request with 429 and a Retry-After header.
func RateLimited(c *gin.Context, retryAfter time.Duration) {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorBody{Error: ErrorDetail{
		Code:      CodeRateLimited,
		Message:   "rate limit exceeded",
		Details:   map[string]string{"retry_after_seconds": strconv.Itoa(secs)},
		RequestID: c.GetString(RequestIDKey),
	}})
}
