package strategy

// ValidationSeverity represents the severity of a validation issue
type ValidationSeverity string

const (
	ValidationSeverityError   ValidationSeverity = "error"
	ValidationSeverityWarning ValidationSeverity = "warning"
)

// ValidationError represents a validation error
type ValidationError struct {
	Rule     string             `json:"rule"`
	Field    string             `json:"field"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationWarning represents a validation warning
type ValidationWarning struct {
	Rule    string `json:"rule"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult contains the result of validation.
// The zero value is not valid; use NewValidationResult.
type ValidationResult struct {
	IsValid  bool                `json:"is_valid"`
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
}

// NewValidationResult returns an empty, valid result
func NewValidationResult() ValidationResult {
	return ValidationResult{
		IsValid:  true,
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}
}

// AddError adds an error to the validation result
func (r *ValidationResult) AddError(rule, field, code, message string) {
	r.Errors = append(r.Errors, ValidationError{
		Rule:     rule,
		Field:    field,
		Code:     code,
		Message:  message,
		Severity: ValidationSeverityError,
	})
	r.IsValid = false
}

// AddWarning adds a warning to the validation result
func (r *ValidationResult) AddWarning(rule, field, code, message string) {
	r.Warnings = append(r.Warnings, ValidationWarning{
		Rule:    rule,
		Field:   field,
		Code:    code,
		Message: message,
	})
}

// Merge appends the issues of other into r
func (r *ValidationResult) Merge(other ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if !other.IsValid || len(other.Errors) > 0 {
		r.IsValid = false
	}
}

// HasRule reports whether any error was raised by the named rule
func (r ValidationResult) HasRule(rule string) bool {
	for _, e := range r.Errors {
		if e.Rule == rule {
			return true
		}
	}
	return false
}
