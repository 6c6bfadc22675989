package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for request validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
)

// Billing error codes
const (
	// ErrCodeInvalidConfiguration is used when a service configuration is unusable
	ErrCodeInvalidConfiguration = "ERR_INVALID_CONFIGURATION"
	// ErrCodeUnsupportedModel is used for unknown pricing models
	ErrCodeUnsupportedModel = "ERR_UNSUPPORTED_PRICING_MODEL"
	// ErrCodeConsumptionOutOfRange is used when consumption breaks the sanity bounds
	ErrCodeConsumptionOutOfRange = "ERR_CONSUMPTION_OUT_OF_RANGE"
	// ErrCodeFormulaEvaluation is used when a formula cannot be evaluated
	ErrCodeFormulaEvaluation = "ERR_FORMULA_EVALUATION"
	// ErrCodeReadingRejected is used when a meter reading fails a hard check
	ErrCodeReadingRejected = "ERR_READING_REJECTED"
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the size limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,

	// Resource errors
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,

	// Billing errors -> 422 Unprocessable Entity
	ErrCodeInvalidConfiguration:  http.StatusUnprocessableEntity,
	ErrCodeUnsupportedModel:      http.StatusUnprocessableEntity,
	ErrCodeConsumptionOutOfRange: http.StatusUnprocessableEntity,
	ErrCodeFormulaEvaluation:     http.StatusUnprocessableEntity,
	ErrCodeReadingRejected:       http.StatusUnprocessableEntity,
	ErrCodeInvalidState:          http.StatusUnprocessableEntity,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":                 ErrCodeNotFound,
	"ALREADY_EXISTS":            ErrCodeAlreadyExists,
	"INVALID_INPUT":             ErrCodeInvalidInput,
	"INVALID_STATE":             ErrCodeInvalidState,
	"INVALID_CONFIGURATION":     ErrCodeInvalidConfiguration,
	"UNSUPPORTED_PRICING_MODEL": ErrCodeUnsupportedModel,
	"CONSUMPTION_OUT_OF_RANGE":  ErrCodeConsumptionOutOfRange,
	"FORMULA_EVALUATION_FAILED": ErrCodeFormulaEvaluation,
	"VALIDATION_FAILED":         ErrCodeReadingRejected,
	"INTERNAL_ERROR":            ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
