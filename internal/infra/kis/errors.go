package kis

import (
	"fmt"
	"strings"

	"github.com/wonny/snowbot/internal/domain/trading"
)

// KIS message codes handled by the client
const (
	CodeRateLimited    = "EGW00201" // 초당 거래건수 초과
	CodeTokenExpired   = "EGW00123" // 기간이 만료된 token
	CodeTokenInvalid   = "EGW00121" // 유효하지 않은 token
	CodeIssueThrottled = "EGW00133" // 접근토큰 발급 1분당 1회
)

// APIError is a non-success broker response
type APIError struct {
	TrID    string
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("KIS API error: tr_id=%s status=%d code=%s msg=%s", e.TrID, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("KIS API error: tr_id=%s status=%d body=%s", e.TrID, e.Status, truncate(e.Body, 200))
}

func (e *APIError) Unwrap() error {
	return trading.ErrBrokerFailure
}

// isRateLimited checks the structured code first, then the raw body
func isRateLimited(code, body string) bool {
	return code == CodeRateLimited || (code == "" && strings.Contains(body, CodeRateLimited))
}

// isTokenRejected reports an expired or invalid token
func isTokenRejected(code, body string) bool {
	if code == CodeTokenExpired || code == CodeTokenInvalid {
		return true
	}
	return code == "" && (strings.Contains(body, CodeTokenExpired) || strings.Contains(body, CodeTokenInvalid))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
