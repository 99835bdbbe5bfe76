package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ipsvault/ips/internal/common"
)

const userIDKey = "userID"

// requireAuth validates the bearer access token and stores the user id in the context.
func (s *HTTPServer) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
			return
		}

		userID, err := s.users.Authenticate(strings.TrimSpace(token))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, common.ErrTokenExpired) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msg})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// limitBody caps request bodies at the configured upload size.
func (s *HTTPServer) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.MaxUploadBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
		}
		c.Next()
	}
}

func (s *HTTPServer) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
