package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *HTTPServer) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := s.users.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.writeError(c, err, "")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "registration successful", "userId": user.ID})
}

func (s *HTTPServer) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, pair, err := s.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		status, msg := statusOf(err, "")
		if status == http.StatusUnauthorized {
			msg = "invalid username or password"
		}
		if status == http.StatusInternalServerError {
			s.writeError(c, err, "")
			return
		}
		c.JSON(status, gin.H{"message": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "login successful",
		"user": gin.H{
			"id":       user.ID,
			"username": user.UserName,
			"email":    user.Email,
		},
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (s *HTTPServer) refreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		badRequest(c, "refresh_token is required")
		return
	}

	pair, err := s.users.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}
