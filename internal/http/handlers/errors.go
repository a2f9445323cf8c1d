// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Generic codes mirror HTTP status semantics, the
// engine-specific ones name the operation that failed.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "subject not found"
//	}
package handlers

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeUnavailable = "unavailable"
	ErrCodeInternal    = "internal_error"

	// Engine-specific:
	ErrCodeIngestFailed     = "ingest_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeContextFailed    = "context_failed"
	ErrCodeResetFailed      = "reset_failed"
	ErrCodeInvalidSettings  = "invalid_settings"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
