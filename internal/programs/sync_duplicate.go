package programs

import (
	"errors"
	"unicode/utf8"

	"github.com/Zombieliu/gear/internal/msg"
)

// ErrNotUTF8 is returned for a request that is not valid UTF-8 text.
var ErrNotUTF8 = errors.New("invalid message: should be utf-8")

// SyncDuplicate replies to "async" with how many requests are in flight,
// after a ping round trip to Target. The counter is reset after each
// reply, so a correct run always answers 1.
type SyncDuplicate struct {
	params  Params
	counter int32
}

// NewSyncDuplicate is the Factory for sync_duplicate.
func NewSyncDuplicate(p Params) msg.Handler {
	return &SyncDuplicate{params: p}
}

// Handle implements msg.Handler.
func (s *SyncDuplicate) Handle(ctx *msg.Context) error {
	payload := ctx.LoadBytes()
	if !utf8.Valid(payload) {
		return ErrNotUTF8
	}
	if string(payload) != "async" {
		return nil
	}

	// The increment happens before the await, so it must not be repeated
	// when the task resumes.
	if err := ctx.Once(func() error {
		s.counter++
		return nil
	}); err != nil {
		return err
	}

	fut, err := ctx.SendBytesAndWaitForReply(s.params.target(), []byte("PING"), 100_000_000, 0)
	if err != nil {
		return err
	}
	if _, err := fut.Await(); err != nil {
		return err
	}

	if _, err := ctx.Reply(s.counter, 100_000_000, 0); err != nil {
		return err
	}
	s.counter = 0
	return nil
}
