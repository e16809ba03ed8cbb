package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/zarver/zarver/internal/apikey/domain"
	"github.com/zarver/zarver/internal/audit/masking"
)

type createAPIKeyRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	keys, err := s.apiKeySvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": keys})
}

func (s *Server) CreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.apiKeySvc.Create(c.Request.Context(), apikeydomain.CreateRequest{
		Name: req.Name,
		Role: apikeydomain.Role(strings.TrimSpace(strings.ToLower(req.Role))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil && resp != nil {
		entityID := resp.KeyID
		_ = s.auditSvc.AuditLog(c.Request.Context(), "", nil, "api_key.created", "api_key", &entityID, map[string]any{
			"name":   strings.TrimSpace(req.Name),
			"secret": masking.MaskSecret(resp.APIKey),
		})
	}

	c.JSON(http.StatusOK, resp)
}

// RotateAPIKey issues a fresh secret and leaves the old key active for a
// short grace window so in-flight deploys keep working.
func (s *Server) RotateAPIKey(c *gin.Context) {
	keyID := strings.TrimSpace(c.Param("key_id"))
	resp, err := s.apiKeySvc.Rotate(c.Request.Context(), keyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil && resp != nil {
		entityID := resp.KeyID
		_ = s.auditSvc.AuditLog(c.Request.Context(), "", nil, "api_key.rotated", "api_key", &entityID, map[string]any{
			"rotated_from_key_id": keyID,
			"secret":              masking.MaskSecret(resp.APIKey),
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	keyID := strings.TrimSpace(c.Param("key_id"))
	if err := s.apiKeySvc.Revoke(c.Request.Context(), keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		entityID := keyID
		_ = s.auditSvc.AuditLog(c.Request.Context(), "", nil, "api_key.revoked", "api_key", &entityID, nil)
	}

	c.Status(http.StatusNoContent)
}
