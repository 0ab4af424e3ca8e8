package domain

import "errors"

// Common domain errors
var (
	ErrBodyTooLarge    = errors.New("request body exceeds configured limit")
	ErrSnapshotFailed  = errors.New("request snapshot construction failed")
	ErrInvalidRule     = errors.New("invalid validation rule")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrPolicyEvalError = errors.New("policy evaluation failed")
)

// ErrorResponse is the uniform JSON body returned for rejected requests.
// It intentionally carries no detail about which check failed or what the
// offending value was, so the error surface cannot be used as a
// signature-discovery oracle.
type ErrorResponse struct {
	Code      string `json:"code"`                 // Stable machine-readable code (REQUEST_REJECTED)
	Message   string `json:"message"`              // Generic human-readable message
	RequestID string `json:"request_id,omitempty"` // Correlation ID for support/audit
}
