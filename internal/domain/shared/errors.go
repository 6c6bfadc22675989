package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound              = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput          = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState          = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInvalidConfiguration  = NewDomainError("INVALID_CONFIGURATION", "Invalid configuration")
	ErrUnsupportedModel      = NewDomainError("UNSUPPORTED_PRICING_MODEL", "Unsupported pricing model")
	ErrConsumptionOutOfRange = NewDomainError("CONSUMPTION_OUT_OF_RANGE", "Consumption outside allowed range")
	ErrFormulaEvaluation     = NewDomainError("FORMULA_EVALUATION_FAILED", "Formula evaluation failed")
	ErrValidationFailed      = NewDomainError("VALIDATION_FAILED", "Validation failed")
	ErrAlreadyExists         = NewDomainError("ALREADY_EXISTS", "Resource already exists")
)

// ErrorCode extracts the domain error code from err, or "" when err is not
// a domain error.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
