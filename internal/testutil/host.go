package testutil

import (
	"errors"
	"fmt"

	"github.com/Zombieliu/gear/internal/ir"
	"github.com/Zombieliu/gear/internal/msg"
)

// ErrFakeGas is returned by FakeHost calls once Gas is spent.
var ErrFakeGas = errors.New("fake host: out of gas")

// Sent is one message or reply committed through a FakeHost.
type Sent struct {
	ID       ir.MessageID
	Dest     ir.ActorID
	Payload  []byte
	GasLimit uint64
	Value    uint64
	Reply    bool
}

// Woken is one FakeHost.Wake call.
type Woken struct {
	Task ir.MessageID
	Gas  uint64
}

// FakeHost is an in-memory msg.Host that records what a handler does.
//
// Ids of sent messages derive from the handled message id and a nonce
// that survives Resume, so a resumed task never reuses an id.
type FakeHost struct {
	ID      ir.MessageID
	ReplyID ir.MessageID
	From    ir.ActorID
	Val     uint64
	Data    []byte
	Gas     uint64
	CallFee uint64 // Gas charged per host call

	Sent   []Sent
	Woken  []Woken
	Waited bool
	Freed  []uint32

	SendErr error // Returned by Send/SendCommit/Reply when set
	WakeErr error // Returned by Wake when set

	nonce      uint64
	handles    map[msg.HandleID][]byte
	nextHandle msg.HandleID
	replyBuf   []byte
	nextPage   uint32
}

var _ msg.Host = (*FakeHost)(nil)

// NewFakeHost creates a host handling message id with payload.
func NewFakeHost(id ir.MessageID, payload []byte) *FakeHost {
	return &FakeHost{
		ID:      id,
		From:    ir.ActorIDFromUint64(1),
		Data:    payload,
		Gas:     1_000_000,
		handles: make(map[msg.HandleID][]byte),
	}
}

// NewFakeReplyHost creates a host handling reply id to replyTo.
func NewFakeReplyHost(id, replyTo ir.MessageID, payload []byte) *FakeHost {
	h := NewFakeHost(id, payload)
	h.ReplyID = replyTo
	return h
}

// Resume prepares the host for the next invocation of the same message.
func (h *FakeHost) Resume() {
	h.Waited = false
	h.replyBuf = nil
	h.handles = make(map[msg.HandleID][]byte)
}

// Replies returns the committed replies.
func (h *FakeHost) Replies() []Sent {
	var out []Sent
	for _, s := range h.Sent {
		if s.Reply {
			out = append(out, s)
		}
	}
	return out
}

func (h *FakeHost) charge() error {
	if h.Gas < h.CallFee {
		return ErrFakeGas
	}
	h.Gas -= h.CallFee
	return nil
}

func (h *FakeHost) newID() ir.MessageID {
	id := ir.MustNewMessageID(h.ID, h.nonce)
	h.nonce++
	return id
}

func (h *FakeHost) MessageID() ir.MessageID { return h.ID }
func (h *FakeHost) ReplyTo() ir.MessageID   { return h.ReplyID }
func (h *FakeHost) Source() ir.ActorID      { return h.From }
func (h *FakeHost) Value() uint64           { return h.Val }
func (h *FakeHost) Payload() []byte         { return h.Data }
func (h *FakeHost) GasAvailable() uint64    { return h.Gas }
func (h *FakeHost) Wait()                   { h.Waited = true }

func (h *FakeHost) Wake(task ir.MessageID, gas uint64) error {
	if h.WakeErr != nil {
		return h.WakeErr
	}
	h.Woken = append(h.Woken, Woken{Task: task, Gas: gas})
	return nil
}

func (h *FakeHost) Send(dest ir.ActorID, payload []byte, gasLimit, value uint64) (ir.MessageID, error) {
	if h.SendErr != nil {
		return ir.MessageID{}, h.SendErr
	}
	if err := h.charge(); err != nil {
		return ir.MessageID{}, err
	}
	id := h.newID()
	h.Sent = append(h.Sent, Sent{
		ID: id, Dest: dest, Payload: append([]byte(nil), payload...),
		GasLimit: gasLimit, Value: value,
	})
	return id, nil
}

func (h *FakeHost) SendInit() (msg.HandleID, error) {
	if err := h.charge(); err != nil {
		return 0, err
	}
	h.nextHandle++
	h.handles[h.nextHandle] = []byte{}
	return h.nextHandle, nil
}

func (h *FakeHost) SendPush(handle msg.HandleID, payload []byte) error {
	buf, ok := h.handles[handle]
	if !ok {
		return fmt.Errorf("fake host: unknown handle %d", handle)
	}
	h.handles[handle] = append(buf, payload...)
	return nil
}

func (h *FakeHost) SendCommit(handle msg.HandleID, dest ir.ActorID, gasLimit, value uint64) (ir.MessageID, error) {
	buf, ok := h.handles[handle]
	if !ok {
		return ir.MessageID{}, fmt.Errorf("fake host: unknown handle %d", handle)
	}
	delete(h.handles, handle)
	return h.Send(dest, buf, gasLimit, value)
}

func (h *FakeHost) Reply(payload []byte, gasLimit, value uint64) (ir.MessageID, error) {
	if h.SendErr != nil {
		return ir.MessageID{}, h.SendErr
	}
	if err := h.charge(); err != nil {
		return ir.MessageID{}, err
	}
	id := h.newID()
	h.Sent = append(h.Sent, Sent{
		ID: id, Dest: h.From, Payload: append([]byte(nil), payload...),
		GasLimit: gasLimit, Value: value, Reply: true,
	})
	return id, nil
}

func (h *FakeHost) ReplyPush(payload []byte) error {
	h.replyBuf = append(h.replyBuf, payload...)
	return nil
}

func (h *FakeHost) ReplyCommit(gasLimit, value uint64) (ir.MessageID, error) {
	buf := h.replyBuf
	h.replyBuf = nil
	return h.Reply(buf, gasLimit, value)
}

func (h *FakeHost) Alloc(pages uint32) (uint32, error) {
	if pages == 0 {
		return 0, errors.New("fake host: zero pages")
	}
	first := h.nextPage
	h.nextPage += pages
	return first, nil
}

func (h *FakeHost) Free(page uint32) error {
	if page >= h.nextPage {
		return fmt.Errorf("fake host: page %d not allocated", page)
	}
	h.Freed = append(h.Freed, page)
	return nil
}
