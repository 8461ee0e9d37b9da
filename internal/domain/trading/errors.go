package trading

import "errors"

// Auth errors are fatal for a cycle. Quota and credential failures are
// returned wrapped as fmt.Errorf("%w: %w", ErrAuth, cause).
var (
	ErrAuth            = errors.New("authentication failed")
	ErrQuotaExceeded   = errors.New("daily token issuance quota exceeded")
	ErrNoCredentials   = errors.New("broker credentials not configured")
	ErrUnauthenticated = errors.New("no usable access token")
)

// Broker call errors
var (
	ErrTransientBroker = errors.New("transient broker error")
	ErrOrderRejected   = errors.New("order rejected")
	ErrBrokerFailure   = errors.New("broker request failed")
)

// Ledger precondition errors
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrNoPosition           = errors.New("no position")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrAccountNotFound      = errors.New("ledger account not found")
)

// Data / infrastructure errors
var (
	ErrDataUnavailable = errors.New("data unavailable")
	ErrInfrastructure  = errors.New("infrastructure error")
)

// Configuration errors
var (
	ErrInvalidProfile = errors.New("invalid profile")
	ErrInvalidMode    = errors.New("invalid execution mode")
)

// Error kinds reported in cycle reports and metric labels
const (
	KindAuth                 = "auth"
	KindTransientBroker      = "transient_broker"
	KindOrderRejected        = "order_rejected"
	KindBrokerFailure        = "broker_failure"
	KindInsufficientFunds    = "insufficient_funds"
	KindInsufficientQuantity = "insufficient_quantity"
	KindNoPosition           = "no_position"
	KindDataUnavailable      = "data_unavailable"
	KindInfrastructure       = "infrastructure"
	KindUnknown              = "unknown"
)

// ErrorKind classifies err into one of the Kind* constants
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth), errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrNoCredentials), errors.Is(err, ErrUnauthenticated):
		return KindAuth
	case errors.Is(err, ErrTransientBroker):
		return KindTransientBroker
	case errors.Is(err, ErrOrderRejected):
		return KindOrderRejected
	case errors.Is(err, ErrBrokerFailure):
		return KindBrokerFailure
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrInsufficientQuantity):
		return KindInsufficientQuantity
	case errors.Is(err, ErrNoPosition):
		return KindNoPosition
	case errors.Is(err, ErrDataUnavailable):
		return KindDataUnavailable
	case errors.Is(err, ErrInfrastructure):
		return KindInfrastructure
	}
	return KindUnknown
}

// IsFatal reports whether err must abort an orchestrator cycle
func IsFatal(err error) bool {
	kind := ErrorKind(err)
	return kind == KindAuth || kind == KindInfrastructure
}
