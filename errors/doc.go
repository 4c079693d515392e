// Package errors provides unified error handling for streamkit.
// It implements structured error types with machine-readable codes,
// HTTP status mapping, and retryable detection. Caller-invoked
// operations across the kit surface failures as *AppError values
// rather than bare exceptions; background loops (the hub sweep,
// tab-counter decrements) log and swallow their errors instead.
package errors
