package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type testCleanupRequest struct {
	UserIDs []string `json:"user_ids"`
}

// TestCleanup wipes everything e2e runs created for the given users. The
// route is never registered in production.
func (s *Server) TestCleanup(c *gin.Context) {
	if s.cfg.Environment == "production" {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req testCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userIDs := make([]int64, 0, len(req.UserIDs))
	for _, raw := range req.UserIDs {
		parsed, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil || parsed == 0 {
			AbortWithError(c, newValidationError("user_ids", "invalid_user", "invalid user id"))
			return
		}
		userIDs = append(userIDs, int64(parsed))
	}
	if len(userIDs) == 0 {
		AbortWithError(c, newValidationError("user_ids", "required", "user_ids is required"))
		return
	}

	ctx := c.Request.Context()

	if err := s.db.WithContext(ctx).Exec(
		`DELETE FROM decision_votes
		 WHERE user_id IN ?
		    OR decision_id IN (SELECT id FROM decisions WHERE owner_id IN ?)`,
		userIDs,
		userIDs,
	).Error; err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.db.WithContext(ctx).Exec(
		`DELETE FROM decisions WHERE owner_id IN ?`, userIDs,
	).Error; err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.db.WithContext(ctx).Exec(
		`DELETE FROM user_decision_stats WHERE user_id IN ?`, userIDs,
	).Error; err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.db.WithContext(ctx).Exec(
		`DELETE FROM quota_states WHERE user_id IN ?`, userIDs,
	).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
