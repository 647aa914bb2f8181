package models

// APIError represents a standardized error response format for the API.
type APIError struct {
	Code    string      `json:"code"`              // Application-specific error code (e.g., "NOT_FOUND", "VALIDATION_ERROR")
	Message string      `json:"message"`           // Human-readable message describing the error
	Details interface{} `json:"details,omitempty"` // Optional field for additional error details
}

// Predefined application-specific error codes
const (
	ErrorCodeInternalServerError = "INTERNAL_SERVER_ERROR"
	ErrorCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"

	ErrorCodeValidation   = "VALIDATION_ERROR"
	ErrorCodeInvalidInput = "INVALID_INPUT" // Unreadable upload or malformed mapping override

	ErrorCodeNotFound     = "NOT_FOUND"
	ErrorCodeJobNotFound  = "JOB_NOT_FOUND"
	ErrorCodeLeadNotFound = "LEAD_NOT_FOUND"

	ErrorCodeConflict    = "CONFLICT_ERROR"
	ErrorCodeSurfaceBusy = "SURFACE_BUSY" // Another import is processing on the same surface
	ErrorCodeJobState    = "INVALID_JOB_STATE"
)
