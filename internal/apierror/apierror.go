// Package apierror provides the error envelope for every 4xx/5xx response.
// Handlers never serialize raw errors; storage details stay in the logs.
package apierror

// Machine-readable codes.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeValidation        = "validation_failed"
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeInsufficientStock = "insufficient_stock"
	CodeNoAllocation      = "no_allocation_at_source"
	CodeInvalidTransfer   = "invalid_transfer"
	CodeSplitOrder        = "split_order"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal_error"
	CodeUnknownOutcome    = "unknown_outcome"
)

// APIError is the canonical error envelope. Context carries structured
// details a caller can use to build its own message (e.g. available stock).
type APIError struct {
	Detail  string         `json:"detail"`
	Code    string         `json:"code,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

func WithCode(code, msg string) *APIError {
	return &APIError{Detail: msg, Code: code}
}

// With attaches one context entry and returns e for chaining.
func (e *APIError) With(key string, value any) *APIError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ValidationError wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "validation failed", Code: CodeValidation, Fields: fields}
}
