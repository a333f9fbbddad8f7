package programs

import (
	"fmt"

	"github.com/Zombieliu/gear/internal/ir"
	"github.com/Zombieliu/gear/internal/msg"
)

// echoChunk is the size of each ReplyPush.
const echoChunk = 4

// NewEcho is the Factory for echo. It replies with its payload, pushed in
// chunks. With an explicit Target it also sends Target a copy prefixed
// with "echo:", built from several pushes.
func NewEcho(p Params) msg.Handler {
	return msg.HandlerFunc(func(ctx *msg.Context) error {
		payload := ctx.LoadBytes()

		if p.Target != (ir.ActorID{}) {
			h, err := ctx.SendInit()
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(h, "echo:%s", payload); err != nil {
				return err
			}
			if _, err := h.Commit(p.Target, 0, 0); err != nil {
				return err
			}
		}

		for start := 0; start < len(payload); start += echoChunk {
			end := min(start+echoChunk, len(payload))
			if err := ctx.ReplyPush(payload[start:end]); err != nil {
				return err
			}
		}
		_, err := ctx.ReplyCommit(0, ctx.Value())
		return err
	})
}
