package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/zarver/zarver/internal/audit/domain"
	auditcontext "github.com/zarver/zarver/internal/auditcontext"
	"github.com/zarver/zarver/internal/usercontext"
)

// HeaderUser carries the caller's user ID, set by the gateway after it
// terminates the session. The auth collaborator owns identity; by the time
// a request reaches this service the header is trusted.
const HeaderUser = "X-User-ID"

// UserRequired rejects /v1 requests without a parseable user identity and
// stores the ID on the request context for handlers and services.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUser))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := usercontext.WithUserID(c.Request.Context(), int64(userID))
		ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeUser), userID.String())

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) userIDFromRequest(c *gin.Context) (snowflake.ID, bool) {
	if c == nil {
		return 0, false
	}
	return usercontext.UserIDFromContext(c.Request.Context())
}
