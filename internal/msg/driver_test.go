package msg_test

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zombieliu/gear/internal/ir"
	"github.com/Zombieliu/gear/internal/msg"
	"github.com/Zombieliu/gear/internal/testutil"
)

var (
	pingActor = ir.ActorIDFromUint64(2)
	quietLog  = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func newDriver(h msg.HandlerFunc, opts ...msg.DriverOption) *msg.Driver {
	return msg.NewDriver(h, append([]msg.DriverOption{msg.WithLogger(quietLog)}, opts...)...)
}

// counterHandler bumps a counter once, asks another program for a reply,
// answers with the counter and resets it.
type counterHandler struct {
	counter int32
	runs    int
}

func (c *counterHandler) Handle(ctx *msg.Context) error {
	c.runs++
	if err := ctx.Once(func() error {
		c.counter++
		return nil
	}); err != nil {
		return err
	}

	fut, err := ctx.SendBytesAndWaitForReply(pingActor, []byte("PING"), 0, 0)
	if err != nil {
		return err
	}
	if _, err := fut.Await(); err != nil {
		return err
	}

	if _, err := ctx.Reply(c.counter, 0, 0); err != nil {
		return err
	}
	c.counter = 0
	return nil
}

func TestDriver_SuspendRecordResume(t *testing.T) {
	h := &counterHandler{}
	d := msg.NewDriver(h, msg.WithLogger(quietLog))
	task := testID(t, 1)
	host := testutil.NewFakeHost(task, []byte("async"))

	out := d.Handle(host)
	require.NoError(t, out.Err)
	assert.Equal(t, msg.TaskSuspended, out.State)
	assert.True(t, host.Waited)
	require.Len(t, host.Sent, 1)
	assert.Equal(t, pingActor, host.Sent[0].Dest)
	assert.Empty(t, host.Replies())
	assert.Equal(t, 1, d.Registry().Len())

	// The reply arrives as its own invocation.
	awaited := host.Sent[0].ID
	replyHost := testutil.NewFakeReplyHost(testID(t, 2), awaited, []byte("PONG"))
	replyHost.Gas = 777
	rout := d.HandleReply(replyHost)
	assert.Equal(t, msg.TaskCompleted, rout.State)
	assert.Equal(t, []testutil.Woken{{Task: task, Gas: 777}}, replyHost.Woken)

	host.Resume()
	out = d.Handle(host)
	require.NoError(t, out.Err)
	assert.Equal(t, msg.TaskCompleted, out.State)

	// Nothing was re-sent; exactly one reply carrying 1.
	replies := host.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, []byte{1, 0, 0, 0}, replies[0].Payload)
	assert.Len(t, host.Sent, 2)
	assert.Equal(t, int32(0), h.counter)
	assert.Equal(t, 2, h.runs)
	assert.Equal(t, 0, d.Registry().Len())
	assert.Equal(t, 0, d.Registry().Tasks())
}

func TestDriver_ReplyForUnknownMessageFaults(t *testing.T) {
	d := newDriver(func(*msg.Context) error { return nil })
	host := testutil.NewFakeReplyHost(testID(t, 2), testID(t, 99), []byte("?"))

	out := d.HandleReply(host)
	assert.Equal(t, msg.TaskFaulted, out.State)
	code, ok := msg.FaultCodeOf(out.Err)
	require.True(t, ok)
	assert.Equal(t, msg.FaultUnknownReply, code)
	assert.Empty(t, host.Woken)
}

func TestDriver_PendingSwallowedFaults(t *testing.T) {
	d := newDriver(func(ctx *msg.Context) error {
		fut, err := ctx.SendBytesAndWaitForReply(pingActor, []byte("PING"), 0, 0)
		if err != nil {
			return err
		}
		if _, ok := fut.Poll(); !ok {
			return nil
		}
		return nil
	})
	host := testutil.NewFakeHost(testID(t, 1), nil)

	out := d.Handle(host)
	assert.Equal(t, msg.TaskFaulted, out.State)
	code, _ := msg.FaultCodeOf(out.Err)
	assert.Equal(t, msg.FaultPendingSwallowed, code)
	assert.False(t, host.Waited)
	assert.Equal(t, 0, d.Registry().Tasks())
}

func TestDriver_WrappedPendingSuspends(t *testing.T) {
	d := newDriver(func(ctx *msg.Context) error {
		fut, err := ctx.SendBytesAndWaitForReply(pingActor, nil, 0, 0)
		if err != nil {
			return err
		}
		_, err = fut.Await()
		return fmt.Errorf("waiting for ping: %w", err)
	})
	host := testutil.NewFakeHost(testID(t, 1), nil)

	out := d.Handle(host)
	assert.Equal(t, msg.TaskSuspended, out.State)
	assert.True(t, host.Waited)
}

func TestDriver_HandlerErrorFaultsTask(t *testing.T) {
	boom := errors.New("boom")
	d := newDriver(func(*msg.Context) error { return boom })

	out := d.Handle(testutil.NewFakeHost(testID(t, 1), nil))
	assert.Equal(t, msg.TaskFaulted, out.State)
	assert.ErrorIs(t, out.Err, boom)
	assert.False(t, msg.IsFault(out.Err))
}

func TestDriver_PanicBecomesTrap(t *testing.T) {
	d := newDriver(func(*msg.Context) error { panic("index out of range") })
	task := testID(t, 1)

	out := d.Handle(testutil.NewFakeHost(task, nil))
	assert.Equal(t, msg.TaskFaulted, out.State)

	var fault *msg.Fault
	require.ErrorAs(t, out.Err, &fault)
	assert.Equal(t, msg.FaultTrap, fault.Code)
	assert.Equal(t, task, fault.MessageID)
	assert.Contains(t, fault.Error(), "index out of range")
}

func TestDriver_HostErrorsAreSynchronous(t *testing.T) {
	sendErr := errors.New("queue full")
	d := newDriver(func(ctx *msg.Context) error {
		_, err := ctx.SendBytesAndWaitForReply(pingActor, nil, 0, 0)
		return err
	})
	host := testutil.NewFakeHost(testID(t, 1), nil)
	host.SendErr = sendErr

	out := d.Handle(host)
	assert.Equal(t, msg.TaskFaulted, out.State)
	assert.ErrorIs(t, out.Err, sendErr)
	assert.Equal(t, 0, d.Registry().Len())
}

func TestDriver_ReplayDivergenceFaults(t *testing.T) {
	first := true
	d := newDriver(func(ctx *msg.Context) error {
		if first {
			first = false
			fut, err := ctx.SendBytesAndWaitForReply(pingActor, nil, 0, 0)
			if err != nil {
				return err
			}
			_, err = fut.Await()
			return err
		}
		return ctx.Once(func() error { return nil })
	})
	host := testutil.NewFakeHost(testID(t, 1), nil)

	require.Equal(t, msg.TaskSuspended, d.Handle(host).State)
	host.Resume()

	out := d.Handle(host)
	assert.Equal(t, msg.TaskFaulted, out.State)
	var fault *msg.Fault
	require.ErrorAs(t, out.Err, &fault)
	assert.Equal(t, msg.FaultReplayDiverged, fault.Code)
	assert.Equal(t, "await", fault.Details["journal"])
	assert.Equal(t, "once", fault.Details["call"])
}

func TestDriver_TypedAwait(t *testing.T) {
	var got int32
	d := newDriver(func(ctx *msg.Context) error {
		fut, err := msg.SendAndWaitForReply[int32](ctx, pingActor, int32(21), 0, 0)
		if err != nil {
			return err
		}
		v, err := fut.Await()
		if err != nil {
			return err
		}
		got = v
		_, err = ctx.Reply(v*2, 0, 0)
		return err
	})
	host := testutil.NewFakeHost(testID(t, 1), nil)

	require.Equal(t, msg.TaskSuspended, d.Handle(host).State)
	assert.Equal(t, []byte{21, 0, 0, 0}, host.Sent[0].Payload)

	reply := testutil.NewFakeReplyHost(testID(t, 2), host.Sent[0].ID, []byte{21, 0, 0, 0})
	require.Equal(t, msg.TaskCompleted, d.HandleReply(reply).State)

	host.Resume()
	require.Equal(t, msg.TaskCompleted, d.Handle(host).State)
	assert.Equal(t, int32(21), got)
	assert.Equal(t, []byte{42, 0, 0, 0}, host.Replies()[0].Payload)
}

func TestDriver_TypedDecodeFailureIsHandlerChoice(t *testing.T) {
	d := newDriver(func(ctx *msg.Context) error {
		fut, err := msg.SendAndWaitForReply[int64](ctx, pingActor, int64(1), 0, 0)
		if err != nil {
			return err
		}
		if _, err := fut.Await(); err != nil {
			if errors.Is(err, msg.ErrPending) {
				return err
			}
			_, rerr := ctx.ReplyBytes([]byte("bad reply"), 0, 0)
			return rerr
		}
		return nil
	})
	host := testutil.NewFakeHost(testID(t, 1), nil)
	require.Equal(t, msg.TaskSuspended, d.Handle(host).State)

	reply := testutil.NewFakeReplyHost(testID(t, 2), host.Sent[0].ID, []byte{1})
	require.Equal(t, msg.TaskCompleted, d.HandleReply(reply).State)

	host.Resume()
	out := d.Handle(host)
	require.NoError(t, out.Err)
	assert.Equal(t, msg.TaskCompleted, out.State)
	assert.Equal(t, []byte("bad reply"), host.Replies()[0].Payload)
}

func TestDriver_MultiPartMessages(t *testing.T) {
	d := newDriver(func(ctx *msg.Context) error {
		h, err := ctx.SendInit()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(h, "hello %s", "gear"); err != nil {
			return err
		}
		if err := h.Push([]byte("!")); err != nil {
			return err
		}
		if _, err := h.Commit(pingActor, 10, 0); err != nil {
			return err
		}

		if err := ctx.ReplyPush([]byte("ok ")); err != nil {
			return err
		}
		if err := ctx.ReplyPush(ctx.LoadBytes()); err != nil {
			return err
		}
		_, err = ctx.ReplyCommit(0, 0)
		return err
	})
	host := testutil.NewFakeHost(testID(t, 1), []byte("in"))

	out := d.Handle(host)
	require.NoError(t, out.Err)
	require.Len(t, host.Sent, 2)
	assert.Equal(t, []byte("hello gear!"), host.Sent[0].Payload)
	assert.Equal(t, uint64(10), host.Sent[0].GasLimit)
	assert.Equal(t, []byte("ok in"), host.Sent[1].Payload)
	assert.True(t, host.Sent[1].Reply)
}

func TestDriver_AllocIsNotRepeatedOnResume(t *testing.T) {
	var pages []uint32
	d := newDriver(func(ctx *msg.Context) error {
		p, err := ctx.Alloc(2)
		if err != nil {
			return err
		}
		pages = append(pages, p)
		fut, err := ctx.SendBytesAndWaitForReply(pingActor, nil, 0, 0)
		if err != nil {
			return err
		}
		if _, err := fut.Await(); err != nil {
			return err
		}
		return ctx.Free(p)
	})
	host := testutil.NewFakeHost(testID(t, 1), nil)
	require.Equal(t, msg.TaskSuspended, d.Handle(host).State)

	reply := testutil.NewFakeReplyHost(testID(t, 2), host.Sent[0].ID, nil)
	require.Equal(t, msg.TaskCompleted, d.HandleReply(reply).State)

	host.Resume()
	require.Equal(t, msg.TaskCompleted, d.Handle(host).State)
	assert.Equal(t, []uint32{0, 0}, pages)
	assert.Equal(t, []uint32{0}, host.Freed)
}

func TestDriver_LoadDecodesPayload(t *testing.T) {
	var got uint64
	d := newDriver(func(ctx *msg.Context) error {
		return ctx.Load(&got)
	})
	out := d.Handle(testutil.NewFakeHost(testID(t, 1), []byte{5, 0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, out.Err)
	assert.Equal(t, uint64(5), got)
}

func TestDriver_RegistryIsSharedAndLazy(t *testing.T) {
	reg := msg.NewRegistry()
	d := newDriver(func(*msg.Context) error { return nil }, msg.WithRegistry(reg))
	assert.Same(t, reg, d.Registry())

	lazy := newDriver(func(*msg.Context) error { return nil })
	assert.Same(t, lazy.Registry(), lazy.Registry())
}

func TestTaskState_String(t *testing.T) {
	assert.Equal(t, "fresh", msg.TaskFresh.String())
	assert.Equal(t, "suspended", msg.TaskSuspended.String())
	assert.Equal(t, "faulted", msg.TaskFaulted.String())
}
