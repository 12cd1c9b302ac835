package purse

import "fmt"

// MinContribution is the smallest purse amount accepted from any source.
// Gross charges whose purse slice lands below the floor are rejected no
// matter how large the charge itself was.
const MinContribution = 2.00

// ValidationError reports malformed or invariant-breaking input. It is
// always recoverable by the caller fixing the request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PolicyCode identifies which business rule rejected an operation.
type PolicyCode string

const (
	BelowMinimum     PolicyCode = "below_minimum"
	WindowNotOpen    PolicyCode = "window_not_open"
	WindowClosed     PolicyCode = "window_closed"
	NotActive        PolicyCode = "not_active"
	AlreadyFinalized PolicyCode = "already_finalized"
	AlreadyRefunded  PolicyCode = "already_refunded"
)

// PolicyError is a user-facing rejection by a business rule. Policy
// rejections are never retried automatically.
type PolicyError struct {
	Code    PolicyCode
	Message string
}

func (e *PolicyError) Error() string { return e.Message }

// Policyf builds a PolicyError from a format string.
func Policyf(code PolicyCode, format string, args ...interface{}) *PolicyError {
	return &PolicyError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// GatewayError reports a payment gateway failure, including timeouts. The
// ledger must not record anything when the gateway call did not
// unambiguously succeed.
type GatewayError struct {
	Status  int
	Message string
}

func (e *GatewayError) Error() string { return e.Message }

// ConsistencyError reports an allocation hierarchy that no longer sums to
// 100% when a recompute runs. It means an upstream validation was bypassed;
// the recompute fails loudly rather than producing wrong totals.
type ConsistencyError struct {
	Message string
}

func (e *ConsistencyError) Error() string { return e.Message }

// Consistencyf builds a ConsistencyError from a format string.
func Consistencyf(format string, args ...interface{}) *ConsistencyError {
	return &ConsistencyError{Message: fmt.Sprintf(format, args...)}
}
