package apperror

import (
	"errors"
	"fmt"
)

// Error codes returned to API callers.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeConflict   = "CONFLICT"
	CodeNotFound   = "NOT_FOUND"
	CodeInternal   = "INTERNAL_ERROR"
	CodeDelivery   = "DELIVERY_FAILURE"
)

// ValidationError reports malformed input. It is raised before any store access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ConflictError reports a failed precondition against the current stored state.
// The caller must re-fetch before acting again.
type ConflictError struct {
	Expected string
	Actual   string
	Message  string
}

func (e *ConflictError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "precondition failed"
	}
	if e.Expected == "" && e.Actual == "" {
		return msg
	}
	return fmt.Sprintf("%s: expected=%s, actual=%s", msg, e.Expected, e.Actual)
}

// NotFoundError reports an unknown id, or an actor that is not party to the record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// InternalError wraps store or infrastructure failures. No partial state change
// is visible when it is returned from a state-changing operation.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// DeliveryFailure reports that a push to a live connection failed. It is logged
// by the dispatcher and never returned to the actor that triggered the event.
type DeliveryFailure struct {
	UserID       string
	ConnectionID string
	Err          error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("delivery to %s/%s failed: %v", e.UserID, e.ConnectionID, e.Err)
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a ConflictError naming the expected and actual state.
func Conflict(expected, actual, message string) error {
	return &ConflictError{Expected: expected, Actual: actual, Message: message}
}

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// Internal wraps err as an InternalError unless it already belongs to the taxonomy.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if Code(err) != CodeInternal {
		return err
	}
	var ie *InternalError
	if errors.As(err, &ie) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// Code maps err to its API error code. Unknown errors are internal.
func Code(err error) string {
	var (
		ve *ValidationError
		ce *ConflictError
		ne *NotFoundError
		de *DeliveryFailure
	)
	switch {
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &ce):
		return CodeConflict
	case errors.As(err, &ne):
		return CodeNotFound
	case errors.As(err, &de):
		return CodeDelivery
	default:
		return CodeInternal
	}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
