package programs

import (
	"fmt"
	"strings"

	"github.com/Zombieliu/gear/internal/msg"
)

// NewAlloc is the Factory for alloc. It takes utf8 commands:
//
//	alloc N   reserve N pages, reply with the first page as i32
//	free P    release page P, reply with P as i32
func NewAlloc(Params) msg.Handler {
	return msg.HandlerFunc(func(ctx *msg.Context) error {
		var cmd string
		if err := ctx.Load(&cmd); err != nil {
			return err
		}

		var n uint32
		switch {
		case strings.HasPrefix(cmd, "alloc "):
			if _, err := fmt.Sscanf(cmd, "alloc %d", &n); err != nil {
				return fmt.Errorf("alloc: bad command %q: %w", cmd, err)
			}
			page, err := ctx.Alloc(n)
			if err != nil {
				return err
			}
			_, err = ctx.Reply(int32(page), 0, 0)
			return err

		case strings.HasPrefix(cmd, "free "):
			if _, err := fmt.Sscanf(cmd, "free %d", &n); err != nil {
				return fmt.Errorf("alloc: bad command %q: %w", cmd, err)
			}
			if err := ctx.Free(n); err != nil {
				return err
			}
			_, err := ctx.Reply(int32(n), 0, 0)
			return err

		default:
			return fmt.Errorf("alloc: unknown command %q", cmd)
		}
	})
}
