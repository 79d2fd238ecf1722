package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/runledger/runledger/internal/api/respond"
)

const (
	// RequestIDHeader carries the request identifier in both directions.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key for the request identifier.
	// Error responses rendered by the respond package read the same key.
	RequestIDKey = respond.RequestIDKey

	// maxRequestIDLength bounds caller-supplied identifiers before they reach logs.
	maxRequestIDLength = 128
)

// RequestIDMiddleware ensures every request carries an identifier.
//
// An inbound X-Request-ID is reused when it is non-empty and at most 128
// printable ASCII characters; otherwise a fresh UUID is generated. The value is
// stored under RequestIDKey and echoed in the response header.
//
// Register it right after gin.Recovery so every log line and error body has the ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !acceptableRequestID(id) {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

func acceptableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
