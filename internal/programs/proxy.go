package programs

import (
	"errors"
	"fmt"

	"github.com/Zombieliu/gear/internal/codec"
	"github.com/Zombieliu/gear/internal/msg"
)

// Proxy forwards an i32 to Target and replies with Target's i32 answer.
// A reply from Target that is not an i32 is answered with the bytes
// "bad reply" instead of failing the task.
type Proxy struct {
	params Params
}

// NewProxy is the Factory for proxy.
func NewProxy(p Params) msg.Handler {
	return &Proxy{params: p}
}

// Handle implements msg.Handler.
func (p *Proxy) Handle(ctx *msg.Context) error {
	var n int32
	if err := ctx.Load(&n); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}

	fut, err := msg.SendAndWaitForReply[int32](ctx, p.params.target(), n, 0, 0)
	if err != nil {
		return err
	}
	answer, err := fut.Await()
	switch {
	case errors.Is(err, msg.ErrPending):
		return err
	case codec.IsDecodeError(err):
		ctx.Logger().Warn("proxy: undecodable reply", "error", err)
		_, err = ctx.ReplyBytes([]byte("bad reply"), 0, 0)
		return err
	case err != nil:
		return err
	}

	_, err = ctx.Reply(answer, 0, 0)
	return err
}
