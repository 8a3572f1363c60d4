package models

import (
	"errors"
	"fmt"
)

// Error codes used in artifacts, API responses and internal error handling.
const (
	// Rendering.
	ErrCodeTimeout             = "RENDER_TIMEOUT"
	ErrCodeNavigation          = "NAVIGATION_FAILED"
	ErrCodeContentNeverSettled = "CONTENT_NEVER_SETTLED"

	// Structured extraction.
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeMalformedResponse  = "MALFORMED_RESPONSE"
	ErrCodeSchemaViolation    = "SCHEMA_VIOLATION"

	// Cost estimation.
	ErrCodeUnknownModel = "UNKNOWN_MODEL"

	// Persistence.
	ErrCodeDirectoryNotWritable = "DIRECTORY_NOT_WRITABLE"
	ErrCodeSerializationFailed  = "SERIALIZATION_FAILED"

	// Request handling.
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// Error classes group codes by the component that raises them.
const (
	ClassRender       = "RenderError"
	ClassExtraction   = "ExtractionError"
	ClassUnknownModel = "UnknownModelError"
	ClassIO           = "IOError"
	ClassRequest      = "RequestError"
)

var codeClasses = map[string]string{
	ErrCodeTimeout:              ClassRender,
	ErrCodeNavigation:           ClassRender,
	ErrCodeContentNeverSettled:  ClassRender,
	ErrCodeBackendUnavailable:   ClassExtraction,
	ErrCodeMalformedResponse:    ClassExtraction,
	ErrCodeSchemaViolation:      ClassExtraction,
	ErrCodeUnknownModel:         ClassUnknownModel,
	ErrCodeDirectoryNotWritable: ClassIO,
	ErrCodeSerializationFailed:  ClassIO,
}

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Class   string `json:"class,omitempty"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Class returns the error family the code belongs to.
func (e *ScrapeError) Class() string {
	if c, ok := codeClasses[e.Code]; ok {
		return c
	}
	return ClassRequest
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Class: e.Class(), Message: e.Message}
}

// CodeOf returns the code of the first ScrapeError in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// AsScrapeError finds a ScrapeError in err's chain, wrapping err as an
// internal error when none is present.
func AsScrapeError(err error) *ScrapeError {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return NewScrapeError(ErrCodeInternal, err.Error(), err)
}
