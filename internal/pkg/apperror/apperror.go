// Package apperror defines the typed errors shared by the domain, application and transport layers.
package apperror

import (
	"errors"
	"fmt"

	crerrors "github.com/cockroachdb/errors"
)

// Kind classifies an AppError. Transport layers map kinds to status codes.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindInvalidInterval    Kind = "invalid_interval"
	KindSlotConflict       Kind = "slot_conflict"
	KindInvalidTransition  Kind = "invalid_transition"
	KindUnbalancedEntry    Kind = "unbalanced_entry"
	KindAdapterUnavailable Kind = "adapter_unavailable"
	KindConflict           Kind = "conflict"
	KindConfig             Kind = "config"
	KindInternal           Kind = "internal"
)

// AppError is the error type returned across layer boundaries.
type AppError struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation         = &AppError{Kind: KindValidation}
	ErrNotFound           = &AppError{Kind: KindNotFound}
	ErrForbidden          = &AppError{Kind: KindForbidden}
	ErrInvalidInterval    = &AppError{Kind: KindInvalidInterval}
	ErrSlotConflict       = &AppError{Kind: KindSlotConflict}
	ErrInvalidTransition  = &AppError{Kind: KindInvalidTransition}
	ErrUnbalancedEntry    = &AppError{Kind: KindUnbalancedEntry}
	ErrAdapterUnavailable = &AppError{Kind: KindAdapterUnavailable}
	ErrConflict           = &AppError{Kind: KindConflict}
	ErrConfig             = &AppError{Kind: KindConfig}
)

func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap exposes the underlying cause, if any.
func (e *AppError) Unwrap() error { return e.cause }

// Is reports whether target is a sentinel of the same kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Message == "" && t.cause == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// New creates an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// NewValidationError reports invalid input.
func NewValidationError(message string) *AppError {
	return New(KindValidation, message)
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// NewForbiddenError reports an operation the caller may not perform.
func NewForbiddenError(message string) *AppError {
	return New(KindForbidden, message)
}

// NewInvalidIntervalError reports an interval whose start is not before its end.
func NewInvalidIntervalError(message string) *AppError {
	return New(KindInvalidInterval, message)
}

// NewInvalidTransitionError reports an illegal state change.
func NewInvalidTransitionError(from, to string) *AppError {
	return &AppError{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
		Details: map[string]any{"from": from, "to": to},
	}
}

// NewSlotConflictError reports overlapping blocking bookings.
func NewSlotConflictError(conflictingIDs []string) *AppError {
	return &AppError{
		Kind:    KindSlotConflict,
		Message: "time slot overlaps with an existing booking",
		Details: map[string]any{"conflicting_booking_ids": conflictingIDs},
	}
}

// ConflictingIDs returns the booking ids carried by a slot conflict error.
func ConflictingIDs(err error) []string {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Kind != KindSlotConflict {
		return nil
	}
	ids, _ := appErr.Details["conflicting_booking_ids"].([]string)
	return ids
}

// NewUnbalancedEntryError reports a journal entry whose debits and credits differ.
func NewUnbalancedEntryError(debits, credits int64) *AppError {
	return &AppError{
		Kind:    KindUnbalancedEntry,
		Message: fmt.Sprintf("journal entry is unbalanced: debits=%d credits=%d", debits, credits),
		Details: map[string]any{"debits": debits, "credits": credits},
	}
}

// NewAdapterUnavailableError wraps a transient failure of an external collaborator.
func NewAdapterUnavailableError(adapter string, cause error) *AppError {
	return &AppError{
		Kind:    KindAdapterUnavailable,
		Message: fmt.Sprintf("%s unavailable", adapter),
		Details: map[string]any{"adapter": adapter},
		cause:   crerrors.WithStack(cause),
	}
}

// NewConflictError reports a concurrent modification.
func NewConflictError(message string) *AppError {
	return New(KindConflict, message)
}

// NewConfigError reports invalid configuration.
func NewConfigError(message string) *AppError {
	return New(KindConfig, message)
}

// Wrap attaches a cause to a new AppError of the given kind.
func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, cause: cause}
}
