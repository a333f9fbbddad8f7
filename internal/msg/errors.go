package msg

import (
	"errors"
	"fmt"

	"github.com/Zombieliu/gear/internal/ir"
)

// ErrPending is returned by Await when the reply has not arrived. Handlers
// return it (possibly wrapped) to end the invocation and wait.
var ErrPending = errors.New("reply pending")

// FaultCode categorizes unrecoverable protocol violations.
type FaultCode string

const (
	// FaultUnknownReply indicates a reply arrived for a message nobody awaits.
	FaultUnknownReply FaultCode = "UNKNOWN_REPLY"

	// FaultDuplicateReply indicates a second reply for the same message.
	FaultDuplicateReply FaultCode = "DUPLICATE_REPLY"

	// FaultUnregisteredPoll indicates a future polled an id that was never registered.
	FaultUnregisteredPoll FaultCode = "UNREGISTERED_POLL"

	// FaultDuplicateRegistration indicates an await registered twice for one id.
	FaultDuplicateRegistration FaultCode = "DUPLICATE_REGISTRATION"

	// FaultReplayDiverged indicates a resumed handler issued different calls than before.
	FaultReplayDiverged FaultCode = "REPLAY_DIVERGED"

	// FaultPendingSwallowed indicates a handler saw a pending reply but did not return ErrPending.
	FaultPendingSwallowed FaultCode = "PENDING_SWALLOWED"

	// FaultTrap wraps any other panic raised by handler code.
	FaultTrap FaultCode = "TRAP"
)

// Fault is an unrecoverable violation of the reply protocol.
//
// Faults are raised with panic and recovered only by the Driver, which
// ends the invocation and reports them as Outcome.Err.
type Fault struct {
	// Code identifies the violation.
	Code FaultCode

	// Message is a human-readable description.
	Message string

	// MessageID is the awaited or task message involved, if any.
	MessageID ir.MessageID

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if !f.MessageID.IsZero() {
		return fmt.Sprintf("%s: %s (message=%s)", f.Code, f.Message, f.MessageID.Short())
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// IsFault returns true if err is or wraps a *Fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}

// FaultCodeOf returns the code of the *Fault in err's chain.
func FaultCodeOf(err error) (FaultCode, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code, true
	}
	return "", false
}

func newFault(code FaultCode, id ir.MessageID, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...), MessageID: id}
}

// recoverFault converts a recovered panic value into a *Fault.
func recoverFault(r any, task ir.MessageID) *Fault {
	switch v := r.(type) {
	case *Fault:
		if v.MessageID.IsZero() {
			v.MessageID = task
		}
		return v
	case error:
		return &Fault{Code: FaultTrap, Message: v.Error(), MessageID: task}
	default:
		return &Fault{Code: FaultTrap, Message: fmt.Sprint(v), MessageID: task}
	}
}
