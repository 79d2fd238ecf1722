package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/runledger/runledger/internal/apperr"
)

// BindJSON decodes the request body into dst and translates decoding failures
// into validation errors naming the problem. It never reports KindInternal.
func BindJSON(c *gin.Context, dst any) error {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}

	var maxBytes *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &maxBytes):
		return apperr.Validation("", "request body is too large")
	case errors.Is(err, io.EOF):
		return apperr.Validation("", "request body is required")
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return apperr.Validation(typeErr.Field, typeErr.Field+" has the wrong JSON type")
		}
		return apperr.Validation("", "request body must be a JSON object")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.Validation("", "request body is not valid JSON")
	default:
		return apperr.Validation("", "request body could not be decoded")
	}
}
