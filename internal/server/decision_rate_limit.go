package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zarver/zarver/internal/observability/logger"
	obsmetrics "github.com/zarver/zarver/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	rateLimitReasonUserRate      = "user-rate"
	rateLimitReasonDuplicateText = "duplicate-text"
)

type decisionCreateRateLimitKey struct {
	Text string `json:"text"`
}

// DecisionCreateRateLimit smooths request floods ahead of the quota gate
// and the generator call. The per-user bucket is infrastructure protection
// on top of the daily quota, not a replacement for it; the duplicate-text
// lock makes a double-submitted form cost one quota unit instead of two.
func (s *Server) DecisionCreateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.createLimiter == nil || !s.createLimiter.Enabled() {
			c.Next()
			return
		}

		userID, ok := s.userIDFromRequest(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.createLimiter.AllowUser(ctx, userID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("decision create rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			denyDecisionCreate(c, endpoint, userID.String(), rateLimitReasonUserRate, result.RetryAfter, s.obsMetrics)
			return
		}

		text, err := readDecisionText(c)
		if err != nil {
			logger.FromContext(ctx).Warn("decision create rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}

		if text != "" {
			textHash := hashDecisionText(text)
			token, acquired, err := s.createLimiter.TryLockText(ctx, userID.String(), textHash)
			if err != nil {
				logger.FromContext(ctx).Warn("decision create dedupe lock failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if !acquired {
				denyDecisionCreate(c, endpoint, userID.String(), rateLimitReasonDuplicateText, time.Second, s.obsMetrics)
				return
			}
			defer func() {
				if err := s.createLimiter.ReleaseText(ctx, userID.String(), textHash, token); err != nil {
					logger.FromContext(ctx).Warn("decision create dedupe unlock failed", zap.Error(err))
				}
			}()
		}

		recordRateLimitAllowed(ctx, endpoint, userID.String(), s.obsMetrics)
		c.Next()
	}
}

func denyDecisionCreate(c *gin.Context, endpoint, userID, reason string, retryAfter time.Duration, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("decision create rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, userID, reason, metrics)

	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(retryAfter time.Duration) int {
	secs := int(retryAfter / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func recordRateLimitAllowed(ctx context.Context, endpoint, userID string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, userID, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, userID, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, userID, endpoint, reason)
}

// readDecisionText peeks at the request body for the dedupe key and puts
// the body back for the handler's own bind.
func readDecisionText(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload decisionCreateRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}

	return strings.TrimSpace(payload.Text), nil
}

func hashDecisionText(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
