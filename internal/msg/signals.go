package msg

import (
	"slices"
	"sync"

	"github.com/Zombieliu/gear/internal/ir"
)

// PollState is the answer to "has the reply to this message arrived?".
type PollState int

const (
	// PollAbsent means no entry exists: never registered, or already consumed.
	PollAbsent PollState = iota
	// PollPending means the entry exists but the reply has not arrived.
	PollPending
	// PollReady means the reply arrived; the poll consumed the entry.
	PollReady
)

// String returns the string representation of PollState.
func (s PollState) String() string {
	switch s {
	case PollAbsent:
		return "absent"
	case PollPending:
		return "pending"
	case PollReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ReplyPoll is the result of Registry.Poll.
type ReplyPoll struct {
	State   PollState
	Payload []byte // Set only when State is PollReady
}

// PendingReply is a read-only view of one registry entry.
type PendingReply struct {
	Awaited    ir.MessageID `json:"awaited"`
	WakeTarget ir.MessageID `json:"wake_target"`
	Arrived    bool         `json:"arrived"`
}

type wakeSignal struct {
	wakeTarget ir.MessageID
	payload    []byte
	arrived    bool // payload may legitimately be empty
}

// Registry correlates outgoing messages with the tasks awaiting their replies.
//
// INVARIANTS:
//   - At most one entry per awaited id
//   - An entry lives from Register until the first poll that sees its payload
//   - Record never creates an entry
//
// The Registry also holds the per-task replay journals (see journal.go).
type Registry struct {
	mu       sync.Mutex
	signals  map[ir.MessageID]*wakeSignal
	journals map[ir.MessageID]*journal
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		signals:  make(map[ir.MessageID]*wakeSignal),
		journals: make(map[ir.MessageID]*journal),
	}
}

// Register starts awaiting the reply to awaited on behalf of wakeTarget.
//
// Panics with FaultDuplicateRegistration if an entry for awaited is still
// present: one key cannot carry two waiters.
func (r *Registry) Register(awaited, wakeTarget ir.MessageID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.signals[awaited]; exists {
		panic(newFault(FaultDuplicateRegistration, awaited, "reply already awaited"))
	}
	r.signals[awaited] = &wakeSignal{wakeTarget: wakeTarget}
}

// Record stores the reply payload for awaited and wakes the waiting task,
// forwarding the gas still available to the current invocation.
//
// Panics with FaultUnknownReply if nothing awaits this reply, and with
// FaultDuplicateReply if a payload was already recorded. A Wake error is a
// host failure and is returned; the payload stays recorded.
func (r *Registry) Record(w Waker, awaited ir.MessageID, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sig, ok := r.signals[awaited]
	if !ok {
		panic(newFault(FaultUnknownReply, awaited, "received reply for a message that was never sent"))
	}
	if sig.arrived {
		panic(newFault(FaultDuplicateReply, awaited, "reply already recorded"))
	}

	sig.payload = append([]byte(nil), payload...)
	sig.arrived = true

	// Wake under the lock: record-then-wake is one step.
	return w.Wake(sig.wakeTarget, w.GasAvailable())
}

// Poll reports whether the reply to awaited is available.
// A ready poll removes the entry; a pending poll leaves it untouched.
func (r *Registry) Poll(awaited ir.MessageID) ReplyPoll {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pollLocked(awaited)
}

func (r *Registry) pollLocked(awaited ir.MessageID) ReplyPoll {
	sig, ok := r.signals[awaited]
	switch {
	case !ok:
		return ReplyPoll{State: PollAbsent}
	case !sig.arrived:
		return ReplyPoll{State: PollPending}
	default:
		delete(r.signals, awaited)
		return ReplyPoll{State: PollReady, Payload: sig.payload}
	}
}

// Len returns the number of entries (pending or arrived, not yet consumed).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

// Snapshot returns all entries ordered by awaited id.
func (r *Registry) Snapshot() []PendingReply {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PendingReply, 0, len(r.signals))
	for awaited, sig := range r.signals {
		out = append(out, PendingReply{
			Awaited:    awaited,
			WakeTarget: sig.wakeTarget,
			Arrived:    sig.arrived,
		})
	}
	slices.SortFunc(out, func(a, b PendingReply) int {
		return a.Awaited.Compare(b.Awaited)
	})
	return out
}
