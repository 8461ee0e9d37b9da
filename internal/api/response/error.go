package response

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/wonny/snowbot/internal/api/middleware"
	"github.com/wonny/snowbot/internal/domain/trading"
)

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details
type ErrorDetail struct {
	Code      string    `json:"code"`
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Error codes
const (
	ErrCodeInternalServer        = "INTERNAL_SERVER_ERROR"
	ErrCodeInvalidParameter      = "INVALID_PARAMETER"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeConflict              = "CONFLICT"
	ErrCodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	ErrCodeExternalAPIError      = "EXTERNAL_API_ERROR"
	ErrCodeBusinessRuleViolation = "BUSINESS_RULE_VIOLATION"
)

// Error sends an error response
func Error(c *gin.Context, status int, code, message string) {
	send(c, status, code, "", message)
}

func send(c *gin.Context, status int, code, kind, message string) {
	detail := ErrorDetail{
		Code:      code,
		Kind:      kind,
		Message:   message,
		RequestID: middleware.GetRequestID(c),
		Timestamp: time.Now(),
	}

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.
		Str("request_id", detail.RequestID).
		Str("error_code", code).
		Str("kind", kind).
		Str("message", message).
		Int("status", status).
		Msg("API error response")

	c.AbortWithStatusJSON(status, ErrorResponse{Error: detail})
}

// BadRequest sends a 400 Bad Request error
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, ErrCodeInvalidParameter, message)
}

// Conflict sends a 409 Conflict error
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, ErrCodeConflict, message)
}

// FromError maps a domain error to a status by its kind
func FromError(c *gin.Context, err error) {
	kind := trading.ErrorKind(err)

	var status int
	var code string
	switch kind {
	case trading.KindAuth:
		status, code = http.StatusUnauthorized, ErrCodeUnauthorized
	case trading.KindTransientBroker:
		status, code = http.StatusTooManyRequests, ErrCodeRateLimitExceeded
	case trading.KindOrderRejected, trading.KindBrokerFailure:
		status, code = http.StatusBadGateway, ErrCodeExternalAPIError
	case trading.KindInsufficientFunds, trading.KindInsufficientQuantity:
		status, code = http.StatusUnprocessableEntity, ErrCodeBusinessRuleViolation
	case trading.KindNoPosition, trading.KindDataUnavailable:
		status, code = http.StatusNotFound, ErrCodeNotFound
	default:
		status, code = http.StatusInternalServerError, ErrCodeInternalServer
		if errors.Is(err, trading.ErrInvalidQuantity) || errors.Is(err, trading.ErrInvalidProfile) {
			status, code = http.StatusBadRequest, ErrCodeInvalidParameter
		}
	}

	send(c, status, code, kind, err.Error())
}
