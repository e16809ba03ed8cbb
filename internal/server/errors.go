package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/zarver/zarver/internal/apikey/domain"
	auditdomain "github.com/zarver/zarver/internal/audit/domain"
	"github.com/zarver/zarver/internal/authorization"
	decisiondomain "github.com/zarver/zarver/internal/decision/domain"
	quotadomain "github.com/zarver/zarver/internal/quota/domain"
	signupdomain "github.com/zarver/zarver/internal/signup/domain"
	statsdomain "github.com/zarver/zarver/internal/stats/domain"
	votedomain "github.com/zarver/zarver/internal/vote/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	// Remaining and DailyLimit are set on quota_exceeded responses so
	// clients can render the upgrade prompt without a second request.
	Remaining  *int `json:"remaining,omitempty"`
	DailyLimit *int `json:"daily_limit,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if quotaPayload, ok := asQuotaExceeded(err); ok {
		return http.StatusTooManyRequests, quotaPayload
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, decisiondomain.ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, decisiondomain.ErrAlreadyResolved):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "already_resolved",
		}
	case errors.Is(err, decisiondomain.ErrNotYetResolved):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "not_yet_resolved",
		}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// asQuotaExceeded renders the 429 body for an exhausted daily allowance.
// The wrapped form carries the caller's limit; the bare sentinel still maps
// but without it.
func asQuotaExceeded(err error) (errorPayload, bool) {
	if !errors.Is(err, decisiondomain.ErrQuotaExceeded) {
		return errorPayload{}, false
	}

	remaining := 0
	payload := errorPayload{
		Type:      "quota_exceeded",
		Message:   "daily decision quota exhausted",
		Remaining: &remaining,
	}

	var quotaErr *decisiondomain.QuotaExceededError
	if errors.As(err, &quotaErr) && quotaErr.DailyLimit > 0 {
		limit := quotaErr.DailyLimit
		payload.DailyLimit = &limit
	}
	return payload, true
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, signupdomain.ErrInvalidRequest):
		return true
	case isDecisionValidationError(err),
		isQuotaValidationError(err),
		isVoteValidationError(err),
		isStatsValidationError(err),
		isAPIKeyValidationError(err),
		isAuditValidationError(err):
		return true
	default:
		return false
	}
}

func isDecisionValidationError(err error) bool {
	switch {
	case errors.Is(err, decisiondomain.ErrInvalidUser),
		errors.Is(err, decisiondomain.ErrInvalidDecision),
		errors.Is(err, decisiondomain.ErrInvalidText),
		errors.Is(err, decisiondomain.ErrTextTooLong),
		errors.Is(err, decisiondomain.ErrInvalidPrivacyLevel),
		errors.Is(err, decisiondomain.ErrInvalidAlternatives):
		return true
	default:
		return false
	}
}

func isQuotaValidationError(err error) bool {
	return errors.Is(err, quotadomain.ErrInvalidUser)
}

func isVoteValidationError(err error) bool {
	switch {
	case errors.Is(err, votedomain.ErrInvalidDecision),
		errors.Is(err, votedomain.ErrInvalidUser),
		errors.Is(err, votedomain.ErrInvalidVoteType):
		return true
	default:
		return false
	}
}

func isStatsValidationError(err error) bool {
	return errors.Is(err, statsdomain.ErrInvalidUser)
}

func isAPIKeyValidationError(err error) bool {
	switch {
	case errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidRole),
		errors.Is(err, apikeydomain.ErrInvalidKeyID):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, decisiondomain.ErrNotFound),
		errors.Is(err, quotadomain.ErrNotFound),
		errors.Is(err, votedomain.ErrNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, signupdomain.ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog feeds the request logger the same classification the
// response body gets, without writing anything.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}

	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
