package workflow

import (
	"errors"
	"strings"
)

var (
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrNotFound          = errors.New("workflow not found")
	ErrInactive          = errors.New("workflow is inactive")
	ErrAlreadyRunning    = errors.New("workflow is already running")
	ErrPaused            = errors.New("workflow is paused")
	ErrUnknownStepType   = errors.New("unknown step type")
	ErrStepTimeout       = errors.New("step timed out")
	ErrNotConfigured     = errors.New("collaborator not configured")
	ErrTemplateNotFound  = errors.New("workflow template not found")
	ErrRunLockLost       = errors.New("run lock lost")
)

// ValidationError carries every problem found in a rejected definition.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return ErrInvalidDefinition.Error()
	}
	return ErrInvalidDefinition.Error() + ": " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidDefinition
}
