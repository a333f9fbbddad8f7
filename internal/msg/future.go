package msg

import (
	"github.com/Zombieliu/gear/internal/codec"
	"github.com/Zombieliu/gear/internal/ir"
)

// MessageFuture is the pending reply to one sent message.
//
// It holds only the awaited id. Polling it reads the Registry; the first
// poll that sees the reply consumes the entry, so the payload is handed
// over exactly once.
type MessageFuture struct {
	reg       *Registry
	awaited   ir.MessageID
	step      *step  // journal link, nil for a detached future
	onPending func() // notified when a poll finds the reply missing
}

// NewMessageFuture returns a future for a reply already registered in reg.
func NewMessageFuture(reg *Registry, awaited ir.MessageID) *MessageFuture {
	return &MessageFuture{reg: reg, awaited: awaited}
}

// MessageID returns the id of the message whose reply this future awaits.
func (f *MessageFuture) MessageID() ir.MessageID {
	return f.awaited
}

// Poll returns the reply payload and true once it has arrived.
//
// Panics with FaultUnregisteredPoll if the Registry has no entry for the
// id: it was never registered or its reply was already consumed.
func (f *MessageFuture) Poll() ([]byte, bool) {
	res := f.reg.pollStep(f.awaited, f.step)
	switch res.State {
	case PollReady:
		return res.Payload, true
	case PollPending:
		if f.onPending != nil {
			f.onPending()
		}
		return nil, false
	default:
		panic(newFault(FaultUnregisteredPoll, f.awaited, "polled a reply that is not awaited"))
	}
}

// Await returns the reply payload, or ErrPending if it has not arrived.
func (f *MessageFuture) Await() ([]byte, error) {
	payload, ok := f.Poll()
	if !ok {
		return nil, ErrPending
	}
	return payload, nil
}

// CodecFuture is a MessageFuture whose payload is decoded into T.
type CodecFuture[T any] struct {
	raw   *MessageFuture
	codec codec.Codec
}

// NewCodecFuture wraps a raw future with a decoder. A nil codec means codec.Binary.
func NewCodecFuture[T any](raw *MessageFuture, c codec.Codec) *CodecFuture[T] {
	if c == nil {
		c = codec.Binary
	}
	return &CodecFuture[T]{raw: raw, codec: c}
}

// MessageID returns the id of the message whose reply this future awaits.
func (f *CodecFuture[T]) MessageID() ir.MessageID {
	return f.raw.MessageID()
}

// Poll returns the decoded reply and true once it has arrived. A payload
// that does not decode is returned as *codec.DecodeError; the reply is
// consumed either way.
func (f *CodecFuture[T]) Poll() (T, bool, error) {
	var v T
	payload, ok := f.raw.Poll()
	if !ok {
		return v, false, nil
	}
	if err := f.codec.Decode(payload, &v); err != nil {
		var zero T
		return zero, true, err
	}
	return v, true, nil
}

// Await returns the decoded reply, ErrPending if it has not arrived, or
// the decode error.
func (f *CodecFuture[T]) Await() (T, error) {
	v, ok, err := f.Poll()
	if err != nil {
		return v, err
	}
	if !ok {
		return v, ErrPending
	}
	return v, nil
}
