package msg

import (
	"fmt"

	"github.com/Zombieliu/gear/internal/ir"
)

// MessageHandle builds one outgoing message from several pushes.
type MessageHandle struct {
	ctx *Context
	id  HandleID
}

// ID returns the host handle.
func (h *MessageHandle) ID() HandleID { return h.id }

// Push appends payload to the message.
func (h *MessageHandle) Push(payload []byte) error {
	if err := h.ctx.host.SendPush(h.id, payload); err != nil {
		return fmt.Errorf("send push %d: %w", h.id, err)
	}
	return nil
}

// Write implements io.Writer on top of Push.
func (h *MessageHandle) Write(p []byte) (int, error) {
	if err := h.Push(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Commit sends the assembled message to dest.
func (h *MessageHandle) Commit(dest ir.ActorID, gasLimit, value uint64) (ir.MessageID, error) {
	st, err := h.ctx.journaled(stepSend, func() (*step, error) {
		id, err := h.ctx.host.SendCommit(h.id, dest, gasLimit, value)
		if err != nil {
			return nil, err
		}
		return &step{kind: stepSend, id: id}, nil
	})
	if err != nil {
		return ir.MessageID{}, fmt.Errorf("send commit %d: %w", h.id, err)
	}
	return st.id, nil
}
