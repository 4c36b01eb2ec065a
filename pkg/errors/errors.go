package errors

import "fmt"

// ErrorCategory represents the category of a gateway error for handling
type ErrorCategory string

const (
	CategoryDeclined       ErrorCategory = "declined"
	CategoryNetworkError   ErrorCategory = "network_error"
	CategorySystemError    ErrorCategory = "system_error"
	CategoryInvalidRequest ErrorCategory = "invalid_request"
)

// GatewayError represents a payment gateway failure with enough context to
// decide escalation. Retriable distinguishes transport faults from hard
// declines, though the escalation policy counts both as failed attempts.
type GatewayError struct {
	Code           string
	Message        string
	GatewayMessage string
	Category       ErrorCategory
	Retriable      bool
}

func (e *GatewayError) Error() string {
	if e.GatewayMessage != "" {
		return fmt.Sprintf("%s: %s (gateway: %s)", e.Code, e.Message, e.GatewayMessage)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewGatewayError creates a new gateway error
func NewGatewayError(code, message string, category ErrorCategory, retriable bool) *GatewayError {
	return &GatewayError{
		Code:      code,
		Message:   message,
		Category:  category,
		Retriable: retriable,
	}
}

// WithGatewayMessage attaches the raw gateway response text
func (e *GatewayError) WithGatewayMessage(msg string) *GatewayError {
	e.GatewayMessage = msg
	return e
}
