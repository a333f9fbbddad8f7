package programs

import (
	"fmt"

	"github.com/Zombieliu/gear/internal/msg"
)

// NewDoubler is the Factory for doubler.
func NewDoubler(Params) msg.Handler {
	return msg.HandlerFunc(func(ctx *msg.Context) error {
		var n int32
		if err := ctx.Load(&n); err != nil {
			return fmt.Errorf("doubler: %w", err)
		}
		_, err := ctx.Reply(n*2, 0, 0)
		return err
	})
}
