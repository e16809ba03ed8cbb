package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	signupdomain "github.com/zarver/zarver/internal/signup/domain"
)

type SignupRequest struct {
	UserID  string `json:"user_id"`
	Premium bool   `json:"premium"`
}

// Signup provisions the quota ledger row for a user the auth collaborator
// just created. Identity itself lives upstream; only our side is seeded
// here, and repeats are safe.
func (s *Server) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.signupSvc.Signup(c.Request.Context(), signupdomain.Request{
		UserID:  req.UserID,
		Premium: req.Premium,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
