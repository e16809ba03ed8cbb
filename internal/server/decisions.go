package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	decisiondomain "github.com/zarver/zarver/internal/decision/domain"
)

type createDecisionRequest struct {
	Text         string `json:"text"`
	PrivacyLevel string `json:"privacy_level"`
}

type annotateDecisionRequest struct {
	Implemented *bool `json:"implemented"`
}

type updateDecisionPrivacyRequest struct {
	PrivacyLevel string `json:"privacy_level"`
}

type listDecisionsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
}

func (s *Server) CreateDecision(c *gin.Context) {
	userID, ok := s.userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.decisionSvc.Create(c.Request.Context(), decisiondomain.CreateDecisionRequest{
		OwnerID:      userID,
		Text:         req.Text,
		PrivacyLevel: decisiondomain.PrivacyLevel(strings.TrimSpace(strings.ToLower(req.PrivacyLevel))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("decision_id", resp.ID)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetDecisionByID(c *gin.Context) {
	userID, ok := s.userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	decisionID, err := decisionIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	dec, err := s.decisionSvc.GetByID(c.Request.Context(), decisionID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dec)
}

func (s *Server) ListDecisions(c *gin.Context) {
	userID, ok := s.userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listDecisionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.decisionSvc.ListHistory(c.Request.Context(), decisiondomain.ListHistoryRequest{
		OwnerID:   userID,
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Decisions, "page_info": resp.PageInfo})
}

func (s *Server) ResolveDecision(c *gin.Context) {
	userID, ok := s.userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	decisionID, err := decisionIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.decisionSvc.Resolve(c.Request.Context(), decisionID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("decision_id", resp.ID)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) AnnotateDecision(c *gin.Context) {
	userID, ok := s.userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	decisionID, err := decisionIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req annotateDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Implemented == nil {
		AbortWithError(c, newValidationError("implemented", "required", "implemented is required"))
		return
	}

	dec, err := s.decisionSvc.AnnotateOutcome(c.Request.Context(), decisionID, userID, *req.Implemented)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dec)
}

func (s *Server) UpdateDecisionPrivacy(c *gin.Context) {
	userID, ok := s.userIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	decisionID, err := decisionIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateDecisionPrivacyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dec, err := s.decisionSvc.SetPrivacy(c.Request.Context(), decisionID, userID, decisiondomain.PrivacyLevel(strings.TrimSpace(strings.ToLower(req.PrivacyLevel))))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dec)
}

func decisionIDParam(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		return 0, decisiondomain.ErrInvalidDecision
	}
	return id, nil
}
