package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrPrecondition     = errors.New("precondition failed")
	ErrFetch            = errors.New("fetch failed")
	ErrCreation         = errors.New("creation failed")
	ErrPersistence      = errors.New("persistence failed")
	ErrBusy             = errors.New("operation already in progress")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrPayloadTooLarge  = errors.New("payload too large")
)

// Validation reasons.
const (
	ReasonEmpty            = "empty"
	ReasonEmptyPrompt      = "empty-prompt"
	ReasonUnsupportedMedia = "unsupported-media"
	ReasonPayloadTooLarge  = "payload-too-large"
)

// Precondition reasons.
const (
	ReasonNoTemplate = "no-template"
	ReasonWrongState = "wrong-state"
	ReasonNoArtifact = "no-artifact"
)

// ValidationError is a local, pre-flight failure. It never reaches the network.
type ValidationError struct {
	Reason string
	Detail string
	Err    error
}

func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PreconditionError reports a state machine operation called from a state
// that does not allow it.
type PreconditionError struct {
	Reason string
	State  string
}

func NewPreconditionError(reason, state string) *PreconditionError {
	return &PreconditionError{Reason: reason, State: state}
}

func (e *PreconditionError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("%s: %s", ErrPrecondition, e.Reason)
	}
	return fmt.Sprintf("%s: %s (state %s)", ErrPrecondition, e.Reason, e.State)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// IsValidation reports whether err carries the given validation reason.
func IsValidation(err error, reason string) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Reason == reason
}

// IsPrecondition reports whether err carries the given precondition reason.
func IsPrecondition(err error, reason string) bool {
	var pe *PreconditionError
	return errors.As(err, &pe) && pe.Reason == reason
}
