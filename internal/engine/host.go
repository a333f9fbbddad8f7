package engine

import (
	"fmt"

	"github.com/Zombieliu/gear/internal/ir"
	"github.com/Zombieliu/gear/internal/msg"
)

// invocation is the msg.Host for one dispatch of one message.
//
// Everything it collects (sent messages, wakes, the wait flag) is applied
// by the engine after the driver returns.
type invocation struct {
	e    *Engine
	prog *program
	msg  ir.Message

	gas   uint64
	nonce uint64

	outbox     []ir.Message
	woken      []ir.Message
	handles    map[msg.HandleID][]byte
	nextHandle msg.HandleID
	replyBuf   []byte
	replied    bool
	waited     bool
}

var _ msg.Host = (*invocation)(nil)

func newInvocation(e *Engine, prog *program, m ir.Message) *invocation {
	gas := m.GasLimit
	if gas == 0 {
		gas = e.defaultGas
	}
	return &invocation{
		e:       e,
		prog:    prog,
		msg:     m,
		gas:     gas,
		nonce:   e.nonces[m.ID],
		handles: make(map[msg.HandleID][]byte),
	}
}

// charge takes the fixed per-call fee from the gas meter.
func (inv *invocation) charge(call string) error {
	fee := inv.e.gasPerCall
	if inv.gas < fee {
		return fmt.Errorf("%s: %w (need %d, have %d)", call, ErrGasExhausted, fee, inv.gas)
	}
	inv.gas -= fee
	return nil
}

func (inv *invocation) newID() (ir.MessageID, error) {
	id, err := ir.NewMessageID(inv.msg.ID, inv.nonce)
	if err != nil {
		return ir.MessageID{}, err
	}
	inv.nonce++
	return id, nil
}

func (inv *invocation) MessageID() ir.MessageID { return inv.msg.ID }
func (inv *invocation) ReplyTo() ir.MessageID   { return inv.msg.ReplyTo }
func (inv *invocation) Source() ir.ActorID      { return inv.msg.Source }
func (inv *invocation) Value() uint64           { return inv.msg.Value }
func (inv *invocation) Payload() []byte         { return inv.msg.Payload }
func (inv *invocation) GasAvailable() uint64    { return inv.gas }
func (inv *invocation) Wait()                   { inv.waited = true }

// Wake takes task off the waitlist; it is queued again once this
// invocation ends. Waking a task that is already queued by an earlier
// wake is a no-op, so replies to concurrent awaits of one task can each
// signal it.
func (inv *invocation) Wake(task ir.MessageID, gas uint64) error {
	if inv.e.woken[task] {
		return nil
	}
	waiting, ok := inv.e.waitlist[task]
	if !ok {
		return fmt.Errorf("wake %s: %w", task.Short(), ErrNotWaiting)
	}
	delete(inv.e.waitlist, task)
	inv.e.woken[task] = true

	if gas == 0 {
		gas = inv.e.defaultGas
	}
	waiting.GasLimit = gas
	inv.woken = append(inv.woken, waiting)
	return nil
}

func (inv *invocation) Send(dest ir.ActorID, payload []byte, gasLimit, value uint64) (ir.MessageID, error) {
	if err := inv.charge("send"); err != nil {
		return ir.MessageID{}, err
	}
	return inv.push(ir.Message{
		Destination: dest,
		Payload:     append([]byte(nil), payload...),
		GasLimit:    gasLimit,
		Value:       value,
	})
}

func (inv *invocation) SendInit() (msg.HandleID, error) {
	if err := inv.charge("send_init"); err != nil {
		return 0, err
	}
	inv.nextHandle++
	inv.handles[inv.nextHandle] = []byte{}
	return inv.nextHandle, nil
}

func (inv *invocation) SendPush(h msg.HandleID, payload []byte) error {
	if err := inv.charge("send_push"); err != nil {
		return err
	}
	buf, ok := inv.handles[h]
	if !ok {
		return fmt.Errorf("send_push %d: %w", h, ErrUnknownHandle)
	}
	inv.handles[h] = append(buf, payload...)
	return nil
}

func (inv *invocation) SendCommit(h msg.HandleID, dest ir.ActorID, gasLimit, value uint64) (ir.MessageID, error) {
	if err := inv.charge("send_commit"); err != nil {
		return ir.MessageID{}, err
	}
	buf, ok := inv.handles[h]
	if !ok {
		return ir.MessageID{}, fmt.Errorf("send_commit %d: %w", h, ErrUnknownHandle)
	}
	delete(inv.handles, h)
	return inv.push(ir.Message{
		Destination: dest,
		Payload:     buf,
		GasLimit:    gasLimit,
		Value:       value,
	})
}

func (inv *invocation) Reply(payload []byte, gasLimit, value uint64) (ir.MessageID, error) {
	if err := inv.charge("reply"); err != nil {
		return ir.MessageID{}, err
	}
	return inv.reply(append([]byte(nil), payload...), gasLimit, value)
}

func (inv *invocation) ReplyPush(payload []byte) error {
	if err := inv.charge("reply_push"); err != nil {
		return err
	}
	if err := inv.canReply(); err != nil {
		return err
	}
	inv.replyBuf = append(inv.replyBuf, payload...)
	return nil
}

func (inv *invocation) ReplyCommit(gasLimit, value uint64) (ir.MessageID, error) {
	if err := inv.charge("reply_commit"); err != nil {
		return ir.MessageID{}, err
	}
	buf := inv.replyBuf
	inv.replyBuf = nil
	if buf == nil {
		buf = []byte{}
	}
	return inv.reply(buf, gasLimit, value)
}

func (inv *invocation) Alloc(pages uint32) (uint32, error) {
	if err := inv.charge("alloc"); err != nil {
		return 0, err
	}
	return inv.e.memory.alloc(inv.prog.id, pages)
}

func (inv *invocation) Free(page uint32) error {
	if err := inv.charge("free"); err != nil {
		return err
	}
	return inv.e.memory.free(inv.prog.id, page)
}

func (inv *invocation) canReply() error {
	if inv.msg.IsReply() {
		return ErrReplyToReply
	}
	if inv.replied {
		return ErrAlreadyReplied
	}
	return nil
}

func (inv *invocation) reply(payload []byte, gasLimit, value uint64) (ir.MessageID, error) {
	if err := inv.canReply(); err != nil {
		return ir.MessageID{}, err
	}
	id, err := inv.push(ir.Message{
		Destination: inv.msg.Source,
		Payload:     payload,
		GasLimit:    gasLimit,
		Value:       value,
		ReplyTo:     inv.msg.ID,
	})
	if err != nil {
		return ir.MessageID{}, err
	}
	inv.replied = true
	return id, nil
}

// push assigns an id and source and adds m to the outbox.
func (inv *invocation) push(m ir.Message) (ir.MessageID, error) {
	id, err := inv.newID()
	if err != nil {
		return ir.MessageID{}, err
	}
	m.ID = id
	m.Source = inv.prog.id
	if m.GasLimit == 0 {
		m.GasLimit = inv.e.defaultGas
	}
	inv.outbox = append(inv.outbox, m)
	return id, nil
}
