package msg

import (
	"strconv"

	"github.com/Zombieliu/gear/internal/ir"
)

type stepKind int

const (
	stepAwait stepKind = iota + 1
	stepOnce
	stepSend
	stepReply
	stepAlloc
	stepFree
)

func (k stepKind) String() string {
	switch k {
	case stepAwait:
		return "await"
	case stepOnce:
		return "once"
	case stepSend:
		return "send"
	case stepReply:
		return "reply"
	case stepAlloc:
		return "alloc"
	case stepFree:
		return "free"
	default:
		return "unknown"
	}
}

// step is one journaled side effect of a task.
type step struct {
	kind     stepKind
	id       ir.MessageID // awaited id, or the id a send/reply returned
	page     uint32       // stepAlloc, stepFree
	resolved bool         // stepAwait: reply consumed from the registry
	payload  []byte
}

// journal is the ordered side-effect log of one logical task. The cursor
// is reset at the start of every invocation; calls before the end of the
// log replay, calls past it append.
//
// Multi-part sends (SendInit/Push) and ReplyPush are not journaled: the
// host drops unfinished handles and reply buffers when an invocation
// waits, so they are rebuilt naturally on replay. Only their commits are.
type journal struct {
	steps  []*step
	cursor int
}

// beginTask returns the journal of task with its cursor rewound.
func (r *Registry) beginTask(task ir.MessageID) *journal {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.journals[task]
	if !ok {
		j = &journal{}
		r.journals[task] = j
	}
	j.cursor = 0
	return j
}

// endTask drops the journal of a finished task.
func (r *Registry) endTask(task ir.MessageID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.journals, task)
}

// Tasks returns the number of tasks with a live journal (started, not finished).
func (r *Registry) Tasks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.journals)
}

// replay returns the journaled step at the cursor, if the task already got
// this far in an earlier invocation. Panics with FaultReplayDiverged if
// the journaled step is of a different kind.
func (r *Registry) replay(task ir.MessageID, j *journal, kind stepKind) (*step, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j.cursor >= len(j.steps) {
		return nil, false
	}
	st := j.steps[j.cursor]
	if st.kind != kind {
		panic(&Fault{
			Code:      FaultReplayDiverged,
			Message:   "handler issued a different call than in its previous invocation",
			MessageID: task,
			Details: map[string]string{
				"position": strconv.Itoa(j.cursor),
				"journal":  st.kind.String(),
				"call":     kind.String(),
			},
		})
	}
	j.cursor++
	return st, true
}

// appendStep records a new side effect at the end of the journal.
func (r *Registry) appendStep(j *journal, st *step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.steps = append(j.steps, st)
	j.cursor = len(j.steps)
}

// pollStep polls awaited, serving replies already consumed by an earlier
// invocation of the same task from the journal.
func (r *Registry) pollStep(awaited ir.MessageID, st *step) ReplyPoll {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st != nil && st.resolved {
		return ReplyPoll{State: PollReady, Payload: st.payload}
	}
	res := r.pollLocked(awaited)
	if res.State == PollReady && st != nil {
		st.resolved = true
		st.payload = res.Payload
	}
	return res
}
