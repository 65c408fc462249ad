package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"

	// Resource errors
	ErrCodeNotFound      = "not_found"
	ErrCodeAlreadyExists = "already_exists"
	ErrCodeConflict      = "conflict"

	// Game errors
	ErrCodeGameNotFound        = "game_not_found"
	ErrCodeGameCompleted       = "game_completed"
	ErrCodeDeferredUnavailable = "deferred_unavailable"
	ErrCodeJoinFailed          = "join_failed"
	ErrCodeSubmitFailed        = "submit_failed"
	ErrCodeTimerActionFailed   = "timer_action_failed"
	ErrCodeUnknownTimerAction  = "unknown_timer_action"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeConnectionError    = "connection_error"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
)
