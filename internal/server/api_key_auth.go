package server

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/zarver/zarver/internal/apikey/domain"
	auditdomain "github.com/zarver/zarver/internal/audit/domain"
	auditcontext "github.com/zarver/zarver/internal/auditcontext"
)

// HeaderAPIKey authenticates calls on the internal surface.
const HeaderAPIKey = "X-API-Key"

const (
	contextAuthTypeKey = "auth_type"
	contextAPIKeyIDKey = "api_key_id"
)

// APIKeyRequired authenticates internal requests with a service API key.
// Only the sha256 of a secret is stored, so lookup goes by hash; the match
// is re-checked in constant time before the request proceeds.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
		if secret == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		hash := apikeydomain.HashAPIKey(secret)
		now := time.Now().UTC()

		var record struct {
			KeyID   string `gorm:"column:key_id"`
			KeyHash string `gorm:"column:key_hash"`
		}

		if err := s.db.WithContext(c.Request.Context()).Raw(
			`SELECT key_id, key_hash
			 FROM api_keys
			 WHERE key_hash = ?
			   AND is_active = true
			   AND (expires_at IS NULL OR expires_at > ?)
			 LIMIT 1`,
			hash,
			now,
		).Scan(&record).Error; err != nil {
			AbortWithError(c, err)
			return
		}

		if record.KeyID == "" || subtle.ConstantTimeCompare([]byte(record.KeyHash), []byte(hash)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		s.touchAPIKey(c.Request.Context(), record.KeyID, now)

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, contextAuthTypeKey, string(ActorAPIKey))
		ctx = context.WithValue(ctx, contextAPIKeyIDKey, record.KeyID)
		ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeAPIKey), record.KeyID)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// touchAPIKey records key usage best-effort; authentication never fails on
// a bookkeeping write.
func (s *Server) touchAPIKey(ctx context.Context, keyID string, now time.Time) {
	_ = s.db.WithContext(ctx).Exec(
		`UPDATE api_keys SET last_used_at = ? WHERE key_id = ?`,
		now,
		keyID,
	).Error
}
