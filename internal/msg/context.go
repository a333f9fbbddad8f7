package msg

import (
	"fmt"
	"log/slog"

	"github.com/Zombieliu/gear/internal/codec"
	"github.com/Zombieliu/gear/internal/ir"
)

// Context is what a handler sees of the current message and the host.
//
// Calls that change the world (sends, replies, allocations, awaits, Once)
// are journaled per task. When a suspended task is run again they return
// the recorded result instead of reaching the host a second time.
type Context struct {
	host    Host
	reg     *Registry
	codec   codec.Codec
	task    ir.MessageID
	journal *journal
	logger  *slog.Logger

	pendingSeen bool
}

// ID returns the id of the message being handled. It is also the id of the
// task: a resumed task sees the same value.
func (c *Context) ID() ir.MessageID { return c.task }

// ReplyTo returns the id this message replies to, or zero.
func (c *Context) ReplyTo() ir.MessageID { return c.host.ReplyTo() }

// Source returns the sender.
func (c *Context) Source() ir.ActorID { return c.host.Source() }

// Value returns the value attached to the message.
func (c *Context) Value() uint64 { return c.host.Value() }

// GasAvailable returns the gas left to this invocation.
func (c *Context) GasAvailable() uint64 { return c.host.GasAvailable() }

// Codec returns the codec used by Load, Send, Reply and typed futures.
func (c *Context) Codec() codec.Codec { return c.codec }

// Logger returns a logger carrying the task id.
func (c *Context) Logger() *slog.Logger { return c.logger }

// LoadBytes returns a copy of the message payload.
func (c *Context) LoadBytes() []byte {
	return append([]byte(nil), c.host.Payload()...)
}

// Load decodes the message payload into v.
func (c *Context) Load(v any) error {
	return c.codec.Decode(c.host.Payload(), v)
}

// Send encodes payload and sends it to dest.
func (c *Context) Send(dest ir.ActorID, payload any, gasLimit, value uint64) (ir.MessageID, error) {
	data, err := c.codec.Encode(payload)
	if err != nil {
		return ir.MessageID{}, err
	}
	return c.SendBytes(dest, data, gasLimit, value)
}

// SendBytes sends raw bytes to dest.
func (c *Context) SendBytes(dest ir.ActorID, payload []byte, gasLimit, value uint64) (ir.MessageID, error) {
	st, err := c.journaled(stepSend, func() (*step, error) {
		id, err := c.host.Send(dest, payload, gasLimit, value)
		if err != nil {
			return nil, err
		}
		return &step{kind: stepSend, id: id}, nil
	})
	if err != nil {
		return ir.MessageID{}, fmt.Errorf("send to %s: %w", dest, err)
	}
	return st.id, nil
}

// SendInit starts a message built from several pushes.
func (c *Context) SendInit() (*MessageHandle, error) {
	h, err := c.host.SendInit()
	if err != nil {
		return nil, fmt.Errorf("send init: %w", err)
	}
	return &MessageHandle{ctx: c, id: h}, nil
}

// Reply encodes payload and replies to the current message.
func (c *Context) Reply(payload any, gasLimit, value uint64) (ir.MessageID, error) {
	data, err := c.codec.Encode(payload)
	if err != nil {
		return ir.MessageID{}, err
	}
	return c.ReplyBytes(data, gasLimit, value)
}

// ReplyBytes replies to the current message with raw bytes.
func (c *Context) ReplyBytes(payload []byte, gasLimit, value uint64) (ir.MessageID, error) {
	st, err := c.journaled(stepReply, func() (*step, error) {
		id, err := c.host.Reply(payload, gasLimit, value)
		if err != nil {
			return nil, err
		}
		return &step{kind: stepReply, id: id}, nil
	})
	if err != nil {
		return ir.MessageID{}, fmt.Errorf("reply: %w", err)
	}
	return st.id, nil
}

// ReplyPush appends to the reply buffer sent by ReplyCommit.
func (c *Context) ReplyPush(payload []byte) error {
	if err := c.host.ReplyPush(payload); err != nil {
		return fmt.Errorf("reply push: %w", err)
	}
	return nil
}

// ReplyCommit sends the pushed reply buffer.
func (c *Context) ReplyCommit(gasLimit, value uint64) (ir.MessageID, error) {
	st, err := c.journaled(stepReply, func() (*step, error) {
		id, err := c.host.ReplyCommit(gasLimit, value)
		if err != nil {
			return nil, err
		}
		return &step{kind: stepReply, id: id}, nil
	})
	if err != nil {
		return ir.MessageID{}, fmt.Errorf("reply commit: %w", err)
	}
	return st.id, nil
}

// Alloc reserves n contiguous pages and returns the first page number.
func (c *Context) Alloc(pages uint32) (uint32, error) {
	st, err := c.journaled(stepAlloc, func() (*step, error) {
		page, err := c.host.Alloc(pages)
		if err != nil {
			return nil, err
		}
		return &step{kind: stepAlloc, page: page}, nil
	})
	if err != nil {
		return 0, fmt.Errorf("alloc %d pages: %w", pages, err)
	}
	return st.page, nil
}

// Free releases one page.
func (c *Context) Free(page uint32) error {
	_, err := c.journaled(stepFree, func() (*step, error) {
		if err := c.host.Free(page); err != nil {
			return nil, err
		}
		return &step{kind: stepFree, page: page}, nil
	})
	if err != nil {
		return fmt.Errorf("free page %d: %w", page, err)
	}
	return nil
}

// Once runs fn the first time the task reaches this call and skips it on
// every later run of the same task. An error from fn is returned and
// nothing is recorded, so a retry runs fn again.
func (c *Context) Once(fn func() error) error {
	_, err := c.journaled(stepOnce, func() (*step, error) {
		if err := fn(); err != nil {
			return nil, err
		}
		return &step{kind: stepOnce}, nil
	})
	return err
}

// SendBytesAndWaitForReply sends payload to dest and returns a future for
// the reply. The current task is woken when the reply arrives.
func (c *Context) SendBytesAndWaitForReply(dest ir.ActorID, payload []byte, gasLimit, value uint64) (*MessageFuture, error) {
	st, err := c.journaled(stepAwait, func() (*step, error) {
		id, err := c.host.Send(dest, payload, gasLimit, value)
		if err != nil {
			return nil, err
		}
		c.reg.Register(id, c.task)
		return &step{kind: stepAwait, id: id}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", dest, err)
	}

	c.logger.Debug("awaiting reply",
		"awaited", st.id.Short(),
		"dest", dest.String(),
	)
	return &MessageFuture{
		reg:       c.reg,
		awaited:   st.id,
		step:      st,
		onPending: c.markPending,
	}, nil
}

// SendAndWaitForReply encodes payload with the context codec, sends it and
// returns a future that decodes the reply into T.
func SendAndWaitForReply[T any](c *Context, dest ir.ActorID, payload any, gasLimit, value uint64) (*CodecFuture[T], error) {
	data, err := c.codec.Encode(payload)
	if err != nil {
		return nil, err
	}
	raw, err := c.SendBytesAndWaitForReply(dest, data, gasLimit, value)
	if err != nil {
		return nil, err
	}
	return NewCodecFuture[T](raw, c.codec), nil
}

func (c *Context) markPending() {
	c.pendingSeen = true
}

// journaled replays the next journal step of the given kind, or runs do
// and appends the step it returns.
func (c *Context) journaled(kind stepKind, do func() (*step, error)) (*step, error) {
	if st, ok := c.reg.replay(c.task, c.journal, kind); ok {
		return st, nil
	}
	st, err := do()
	if err != nil {
		return nil, err
	}
	c.reg.appendStep(c.journal, st)
	return st, nil
}
