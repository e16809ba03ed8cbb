package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	votedomain "github.com/zarver/zarver/internal/vote/domain"
)

type castVoteRequest struct {
	VoteType string `json:"vote_type"`
}

func (s *Server) CastVote(c *gin.Context) {
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

	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.voteSvc.Cast(c.Request.Context(), votedomain.CastVoteRequest{
		DecisionID: decisionID,
		UserID:     userID,
		VoteType:   votedomain.VoteType(strings.TrimSpace(strings.ToLower(req.VoteType))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetDecisionVotes(c *gin.Context) {
	decisionID, err := decisionIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.voteSvc.StatsFor(c.Request.Context(), decisionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
