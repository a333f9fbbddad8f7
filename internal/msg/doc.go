// Package msg lets a message program send a message and wait for its reply
// even though every invocation of the program is a fresh, stateless call.
//
// ARCHITECTURE:
//
// There is no stack to suspend. "Waiting" means the invocation ends early
// and the host later runs the same logical task again from the top. Three
// pieces make that sound:
//
//   - Registry: a table from the id of a sent message to the task waiting
//     on it and, once it arrives, the reply payload. The reply entry point
//     (Driver.HandleReply) fills it in and asks the host to wake the task.
//   - Futures: MessageFuture and CodecFuture poll the Registry for one id.
//     Not ready means the handler returns ErrPending and the invocation
//     ends; ready hands over the payload exactly once.
//   - Driver: runs one handler per inbound message to completion or to its
//     first unresolved await.
//
// Replay:
//
// A resumed task re-executes its handler from the start. Each task keeps a
// journal in the Registry of the awaits it issued (and of Once markers), so
// on replay SendBytesAndWaitForReply returns the journaled future instead of
// sending again, and replies consumed by earlier invocations are served from
// the journal. Handlers must be deterministic up to their last await: the
// same calls in the same order on every run. Side effects that are not
// sends, such as bumping a counter, belong inside Context.Once.
//
// Faults:
//
// Protocol violations (a reply nobody waits for, polling an id that was
// never registered, a handler that diverges on replay) panic with *Fault.
// The Driver recovers the panic, ends the invocation and reports
// TaskFaulted; no other component recovers faults. Payload decode failures
// are ordinary *codec.DecodeError values.
//
// Concurrency:
//
// One invocation runs at a time per program. The Registry still guards its
// table with a mutex so register, record-then-wake and poll-then-consume
// are each atomic if a host chooses to run programs in parallel.
package msg
