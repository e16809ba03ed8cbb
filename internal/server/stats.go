package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetMyStats(c *gin.Context) {
	userID, ok := s.userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.statsSvc.Get(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
