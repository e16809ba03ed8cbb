package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	decisiondomain "github.com/zarver/zarver/internal/decision/domain"
)

type feedQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int32  `form:"page_size"`
}

func (s *Server) ListPublicFeed(c *gin.Context) {
	var query feedQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.decisionSvc.PublicFeed(c.Request.Context(), decisiondomain.FeedRequest{
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) GetFeedItemBySlug(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		AbortWithError(c, decisiondomain.ErrNotFound)
		return
	}

	item, err := s.decisionSvc.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}
