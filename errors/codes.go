package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Delivery errors (retryable)
const (
	// ErrCodeConnectionClosed indicates the target connection is closed.
	ErrCodeConnectionClosed ErrorCode = "CONNECTION_CLOSED"
	// ErrCodeStreamBackpressure indicates the client stream cannot accept writes.
	ErrCodeStreamBackpressure ErrorCode = "STREAM_BACKPRESSURE"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the caller exceeded a reporting interval.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates the resource already exists.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeForbidden indicates the caller may not operate on the resource.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeStoreError indicates a session-store collaborator error.
	ErrCodeStoreError ErrorCode = "STORE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeConnectionClosed:   false,
	ErrCodeStreamBackpressure: true,
	ErrCodeTimeout:            true,
	ErrCodeRateLimited:        true,
	ErrCodeStoreError:         true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
