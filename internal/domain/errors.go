package domain

import (
	"fmt"
	"time"
)

// PGxError represents a standardized error response
type PGxError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *PGxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput        = "INVALID_INPUT"
	ErrUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	ErrInvalidEncoding     = "INVALID_ENCODING"
	ErrEmptyUpload         = "EMPTY_UPLOAD"
	ErrVCFParse            = "VCF_PARSE_ERROR"
	ErrNoDrugs             = "NO_DRUGS"
	ErrNotFoundCode        = "NOT_FOUND"
	ErrDatabaseError       = "DATABASE_ERROR"
	ErrExternalAPI         = "EXTERNAL_API_ERROR"
	ErrRateLimit           = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer      = "INTERNAL_SERVER_ERROR"
	ErrValidation          = "VALIDATION_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewPGxError creates a new PGxError with timestamp
func NewPGxError(code, message, details, requestID string) *PGxError {
	return &PGxError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
