package engine

import (
	"errors"
	"fmt"
)

// Host-boundary errors returned to program code from host calls.
var (
	// ErrGasExhausted is returned when a host call costs more gas than is left.
	ErrGasExhausted = errors.New("gas exhausted")

	// ErrNotWaiting is returned by Wake for a message that is not on the waitlist.
	ErrNotWaiting = errors.New("message is not waiting")

	// ErrUnknownHandle is returned for a SendPush/SendCommit on a handle
	// that was never created or is already committed.
	ErrUnknownHandle = errors.New("unknown message handle")

	// ErrAlreadyReplied is returned when an invocation replies twice.
	ErrAlreadyReplied = errors.New("reply already sent")

	// ErrReplyToReply is returned when a reply is itself answered.
	ErrReplyToReply = errors.New("cannot reply to a reply")

	// ErrOutOfMemory is returned when no free run of pages is large enough.
	ErrOutOfMemory = errors.New("out of memory pages")

	// ErrPageNotOwned is returned when freeing a page the program does not own.
	ErrPageNotOwned = errors.New("page not owned by program")

	// ErrStopped is returned by Send after Stop.
	ErrStopped = errors.New("engine stopped")
)

// RuntimeError represents an error detected during engine execution.
//
// Runtime errors end a run (quota) or reject a setup call (program
// registration). Errors raised inside a program are not RuntimeErrors:
// they end that invocation only and are reported through msg.Outcome.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Program identifies the program involved, if any.
	Program string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeQuotaExceeded indicates the run exceeded its dispatch quota.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeProgramExists indicates two programs registered under one id.
	ErrCodeProgramExists RuntimeErrorCode = "PROGRAM_EXISTS"

	// ErrCodeProgramInit indicates a program's initial pages could not be allocated.
	ErrCodeProgramInit RuntimeErrorCode = "PROGRAM_INIT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunID != "" && e.Program != "" {
		return fmt.Sprintf("%s: %s (run=%s, program=%s)", e.Code, e.Message, e.RunID, e.Program)
	}
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	}
	if e.Program != "" {
		return fmt.Sprintf("%s: %s (program=%s)", e.Code, e.Message, e.Program)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeQuotaExceeded
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// IsProgramError returns true if the error rejects a program registration.
func IsProgramError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeProgramExists || re.Code == ErrCodeProgramInit
	}
	return false
}

// NewQuotaError creates a RuntimeError for quota exceeded.
func NewQuotaError(runID string, steps, maxSteps int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("run exceeded max dispatches (%d > %d)", steps, maxSteps),
		RunID:   runID,
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", steps),
			"max_steps": fmt.Sprintf("%d", maxSteps),
		},
	}
}
