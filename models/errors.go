package models

import (
	"errors"
	"fmt"
)

// ValidationError marks a raw upstream object that cannot be normalized.
// The offending post or comment is skipped, siblings are unaffected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid upstream object: " + e.Reason
}

// AuthError means the session is unusable and re-authentication failed
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

// NotFoundError means the upstream resource no longer resolves
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return "not found: " + e.Resource
}

// UpstreamError wraps a transient upstream failure. Status is the HTTP
// status when one was received, zero for transport-level failures.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream unavailable (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("upstream unavailable: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
