package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound        = errors.New("resource not found")
	ErrSessionNotFound = fmt.Errorf("%w: session", ErrNotFound)
	ErrStageNotFound   = fmt.Errorf("%w: stage", ErrNotFound)

	// Validation errors (user-correctable, surfaced for re-prompt)
	ErrValidation         = errors.New("validation failed")
	ErrInvalidProbability = errors.New("probability must lie in [0,1]")
	ErrInvalidOutcome     = errors.New("outcome must be black or white")

	// Protocol errors (programming errors in the calling collaborator, fatal)
	ErrOutOfSequence  = errors.New("operation out of sequence")
	ErrPhaseViolation = errors.New("operation not permitted in current phase")

	// Session construction errors
	ErrStageMismatch        = errors.New("resumed stage probability mismatch")
	ErrDuplicateParticipant = errors.New("participant already has an active session")
	ErrConsentDeclined      = errors.New("participant declined consent")

	// Expected terminal signals
	ErrStageComplete    = errors.New("stage already complete")
	ErrTrainingComplete = errors.New("training already complete")
)

// NewRangeError reports an out-of-range response value
func NewRangeError(field string, value, min, max float64) error {
	return fmt.Errorf("%w: %s %g outside [%g, %g]", ErrValidation, field, value, min, max)
}

// NewPhaseError reports an operation attempted in the wrong session phase
func NewPhaseError(op, phase string) error {
	return fmt.Errorf("%w: %s during %s", ErrPhaseViolation, op, phase)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidProbability) ||
		errors.Is(err, ErrInvalidOutcome)
}

// IsProtocolError reports misuse by the calling collaborator; callers should
// treat these as fatal rather than retrying.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrOutOfSequence) ||
		errors.Is(err, ErrPhaseViolation)
}

// IsCompletionSignal reports the expected end-of-stage signals that trigger
// phase advancement; they are not failures to the caller.
func IsCompletionSignal(err error) bool {
	return errors.Is(err, ErrStageComplete) ||
		errors.Is(err, ErrTrainingComplete)
}
