package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ipsvault/ips/internal/common"
)

// statusOf maps a service error to an HTTP status and a client-facing message.
// notFound overrides the message used for common.ErrorNotFound.
func statusOf(err error, notFound string) (int, string) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, err.Error()
	case isTooLarge(err):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, "refresh token expired"
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, common.ErrorBlobMissing):
		return http.StatusNotFound, "file missing on server"
	case errors.Is(err, common.ErrorNotFound):
		if notFound == "" {
			notFound = "not found"
		}
		return http.StatusNotFound, notFound
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError replies with {message}. Unexpected errors are logged.
func (s *HTTPServer) writeError(c *gin.Context, err error, notFound string) {
	status, msg := statusOf(err, notFound)
	if status == http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"message": msg})
}

// writeFailure replies with {success:false, message}; internal replaces the
// message of unexpected errors.
func (s *HTTPServer) writeFailure(c *gin.Context, err error, notFound, internal string) {
	status, msg := statusOf(err, notFound)
	if status == http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "error", err)
		msg = internal
	}
	c.JSON(status, gin.H{"success": false, "message": msg})
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}
