// Package engine runs message programs in-process the way a Gear node
// would, so fixtures can drive them end to end.
//
// ARCHITECTURE:
//
// Single-Writer Message Loop:
// Messages are dispatched one at a time from a FIFO queue. Each dispatch
// is one invocation of the destination program's msg.Driver:
//   - a reply (ReplyTo set) goes to Driver.HandleReply
//   - anything else goes to Driver.Handle
//   - a message for an actor that is not a program is appended to the log
//
// Invocation Flow:
// 1. A fresh host object is built for the message (gas meter, handles,
//    reply buffer, id nonce)
// 2. The driver runs; host calls are charged a fixed gas fee each
// 3. Messages the program sent are stamped and queued, whatever the outcome
// 4. A task that called Wait moves to the waitlist; Wake moves it back to
//    the queue with the gas the waker handed over
// 5. The dispatch is written to the store, if one is configured
//
// Message ids of program-issued messages derive from the handled message id
// and a nonce. The nonce of a suspended task survives until the task ends,
// so a resumed task never reissues an id.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every queued message is stamped with a monotonic seq from the clock.
// NEVER use wall-clock timestamps for ordering.
//
// Termination:
// Every run has a max-dispatch quota. A program that keeps messaging
// itself ends the run with QUOTA_EXCEEDED instead of looping forever.
package engine
