package errors

import (
	stderrors "errors"
)

// ErrorResponse is the JSON envelope every HTTP endpoint returns on
// failure. Stream clients never see it — errors on an open stream
// surface as eviction — but the out-of-band ack/ping/state and manager
// endpoints all answer with this shape.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the client-facing slice of an AppError. HTTPStatus
// and Cause stay server-side; Retryable tells reconnecting clients
// whether backing off and retrying can help.
type ErrorBody struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ToResponse converts the error into its wire envelope.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: ErrorBody{
		Code:      e.Code,
		Message:   e.Message,
		Retryable: e.Retryable,
		Details:   e.Details,
	}}
}

// AsAppError unwraps err to an *AppError if one is in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsAppError reports whether err has an *AppError in its chain.
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}
