package approval

import "errors"

var (
	// ErrNotFound is returned when a referenced workflow, approval, or step does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an action targets an approval that is already terminal
	ErrInvalidState = errors.New("approval already terminal")

	// ErrInvalidStep is returned when an action targets a step that is not the active step
	ErrInvalidStep = errors.New("not the active step")

	// ErrUnauthorized is returned when the acting user is not in the current step's approver set
	ErrUnauthorized = errors.New("approver not eligible")

	// ErrValidation is returned for malformed input, such as a rejection without comments
	// or a step configuration with no approvers
	ErrValidation = errors.New("validation error")
)
