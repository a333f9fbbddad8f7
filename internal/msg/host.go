package msg

import "github.com/Zombieliu/gear/internal/ir"

// HandleID names an outgoing message being built in parts.
type HandleID uint32

// Waker is the part of the host the Registry needs to resume a task.
type Waker interface {
	// Wake asks the host to run the waiting task again with the given gas.
	Wake(task ir.MessageID, gas uint64) error

	// GasAvailable returns the gas left to the current invocation.
	GasAvailable() uint64
}

// Host is the execution environment of one invocation.
//
// Every call is synchronous. Send returns the new message's id before any
// reply exists. Errors (exhausted gas, unknown handle) surface at the call
// site, never through the await machinery.
type Host interface {
	Waker

	// MessageID returns the id of the message being handled.
	MessageID() ir.MessageID

	// ReplyTo returns the id this message replies to, or zero.
	ReplyTo() ir.MessageID

	// Source returns the sender of the message being handled.
	Source() ir.ActorID

	// Value returns the value attached to the message being handled.
	Value() uint64

	// Payload returns the bytes of the message being handled.
	Payload() []byte

	Send(dest ir.ActorID, payload []byte, gasLimit, value uint64) (ir.MessageID, error)
	SendInit() (HandleID, error)
	SendPush(h HandleID, payload []byte) error
	SendCommit(h HandleID, dest ir.ActorID, gasLimit, value uint64) (ir.MessageID, error)

	Reply(payload []byte, gasLimit, value uint64) (ir.MessageID, error)
	ReplyPush(payload []byte) error
	ReplyCommit(gasLimit, value uint64) (ir.MessageID, error)

	// Alloc reserves n contiguous memory pages and returns the first.
	Alloc(pages uint32) (uint32, error)
	Free(page uint32) error

	// Wait ends the invocation without a reply; the host keeps the message
	// until something wakes it.
	Wait()
}
