package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	quotadomain "github.com/zarver/zarver/internal/quota/domain"
)

// GetQuotaStatus reports the caller's own allowance with the date rollover
// already applied.
func (s *Server) GetQuotaStatus(c *gin.Context) {
	userID, ok := s.userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	status, err := s.quotaSvc.Status(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetUserQuota is the support view of any user's ledger row.
func (s *Server) GetUserQuota(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.quotaSvc.Status(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) GrantPremium(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.quotaSvc.GrantPremium(c.Request.Context(), userID); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		entityID := userID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), "", nil, "quota.premium_granted", "quota_state", &entityID, nil)
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RevokePremium(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.quotaSvc.RevokePremium(c.Request.Context(), userID); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		entityID := userID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), "", nil, "quota.premium_revoked", "quota_state", &entityID, nil)
	}

	c.Status(http.StatusNoContent)
}

func userIDParam(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("user_id")))
	if err != nil || id == 0 {
		return 0, quotadomain.ErrInvalidUser
	}
	return id, nil
}
