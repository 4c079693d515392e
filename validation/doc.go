// Package validation provides request-body validation for streamkit
// HTTP handlers using struct tags (the validator library).
//
//	type AckRequest struct {
//	    SequenceID *int64 `json:"sequence_id" validate:"required,gte=0"`
//	}
//	if err := validation.Validate(&req); err != nil { ... }
//
// Validation failures are returned as *errors.AppError with an
// INVALID_INPUT code and per-field details, ready for the HTTP layer.
package validation
