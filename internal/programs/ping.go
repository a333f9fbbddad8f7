package programs

import (
	"bytes"

	"github.com/Zombieliu/gear/internal/msg"
)

var (
	pingPayload = []byte("PING")
	pongPayload = []byte("PONG")
)

// NewPing is the Factory for ping. Anything other than PING is ignored.
func NewPing(Params) msg.Handler {
	return msg.HandlerFunc(func(ctx *msg.Context) error {
		if !bytes.Equal(ctx.LoadBytes(), pingPayload) {
			return nil
		}
		_, err := ctx.ReplyBytes(pongPayload, 0, 0)
		return err
	})
}
