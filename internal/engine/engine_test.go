package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zombieliu/gear/internal/ir"
	"github.com/Zombieliu/gear/internal/msg"
	"github.com/Zombieliu/gear/internal/store"
	"github.com/Zombieliu/gear/internal/testutil"
)

var (
	user      = ir.ActorIDFromUint64(100)
	counterID = ir.ActorIDFromUint64(1)
	pingID    = ir.ActorIDFromUint64(2)
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-1")),
		WithClock(testutil.NewDeterministicClock()),
	}
	return New(append(base, opts...)...)
}

// pingHandler answers PING with PONG.
func pingHandler(ctx *msg.Context) error {
	if string(ctx.LoadBytes()) != "PING" {
		return nil
	}
	_, err := ctx.ReplyBytes([]byte("PONG"), 0, 0)
	return err
}

// counterHandler bumps a counter, waits for a ping round trip and replies
// with the counter.
func counterHandler() msg.HandlerFunc {
	var counter int32
	return func(ctx *msg.Context) error {
		if err := ctx.Once(func() error { counter++; return nil }); err != nil {
			return err
		}
		fut, err := ctx.SendBytesAndWaitForReply(pingID, []byte("PING"), 0, 0)
		if err != nil {
			return err
		}
		if _, err := fut.Await(); err != nil {
			return err
		}
		if _, err := ctx.Reply(counter, 0, 0); err != nil {
			return err
		}
		counter = 0
		return nil
	}
}

func registerPingPair(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.Register(counterID, "counter", counterHandler(), 1))
	require.NoError(t, e.Register(pingID, "ping", msg.HandlerFunc(pingHandler), 1))
}

func states(ds []Dispatch) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		if d.Logged {
			out[i] = "logged"
			continue
		}
		out[i] = d.Program + ":" + d.Outcome.State.String()
	}
	return out
}

func TestEngine_SuspendWakeResume(t *testing.T) {
	e := newTestEngine(t)
	registerPingPair(t, e)

	task, err := e.Send(user, counterID, []byte("async"), 0, 0)
	require.NoError(t, err)

	ds, err := e.RunUntilIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"counter:suspended",
		"ping:completed",
		"counter:completed", // reply recorded, task woken
		"counter:completed", // task resumed
		"logged",
	}, states(ds))

	log := e.Log()
	require.Len(t, log, 1)
	assert.Equal(t, user, log[0].Destination)
	assert.Equal(t, counterID, log[0].Source)
	assert.Equal(t, []byte{1, 0, 0, 0}, log[0].Payload)
	assert.Equal(t, task, log[0].ReplyTo)

	assert.Empty(t, e.Waiting())
	reg, ok := e.Registry(counterID)
	require.True(t, ok)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, reg.Tasks())
	assert.Empty(t, e.nonces)
}

// joinHandler sends PING to ping twice and replies with both answers once
// they are in.
func joinHandler(ctx *msg.Context) error {
	first, err := ctx.SendBytesAndWaitForReply(pingID, []byte("PING"), 0, 0)
	if err != nil {
		return err
	}
	second, err := ctx.SendBytesAndWaitForReply(pingID, []byte("PING"), 0, 0)
	if err != nil {
		return err
	}
	a, err := first.Await()
	if err != nil {
		return err
	}
	b, err := second.Await()
	if err != nil {
		return err
	}
	_, err = ctx.ReplyBytes(append(a, b...), 0, 0)
	return err
}

func TestEngine_JoinTwoAwaits(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register(counterID, "join", msg.HandlerFunc(joinHandler), 1))
	require.NoError(t, e.Register(pingID, "ping", msg.HandlerFunc(pingHandler), 1))

	_, err := e.Send(user, counterID, []byte("go"), 0, 0)
	require.NoError(t, err)

	ds, err := e.RunUntilIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"join:suspended",
		"ping:completed",
		"ping:completed",
		"join:completed", // first reply wakes the task
		"join:completed", // second reply finds it already queued
		"join:completed",
		"logged",
	}, states(ds))
	for _, d := range ds {
		assert.NoError(t, d.Outcome.Err)
	}

	log := e.Log()
	require.Len(t, log, 1)
	assert.Equal(t, []byte("PONGPONG"), log[0].Payload)
	assert.Empty(t, e.Waiting())
	assert.Empty(t, e.woken)
}

func TestEngine_CounterResetsBetweenTasks(t *testing.T) {
	e := newTestEngine(t)
	registerPingPair(t, e)

	_, err := e.Send(user, counterID, []byte("async"), 0, 0)
	require.NoError(t, err)
	_, err = e.RunUntilIdle(context.Background())
	require.NoError(t, err)

	_, err = e.Send(user, counterID, []byte("async"), 0, 0)
	require.NoError(t, err)
	_, err = e.RunUntilIdle(context.Background())
	require.NoError(t, err)

	log := e.Log()
	require.Len(t, log, 2)
	assert.Equal(t, []byte{1, 0, 0, 0}, log[0].Payload)
	assert.Equal(t, []byte{1, 0, 0, 0}, log[1].Payload)
}

func TestEngine_RunStepsStopsEarly(t *testing.T) {
	e := newTestEngine(t)
	registerPingPair(t, e)
	_, err := e.Send(user, counterID, []byte("async"), 0, 0)
	require.NoError(t, err)

	ds, err := e.RunSteps(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, msg.TaskSuspended, ds[0].Outcome.State)
	assert.Len(t, e.Waiting(), 1)
	assert.Equal(t, 1, e.QueueLen())
	require.Len(t, ds[0].Sent, 1)
	assert.Equal(t, []byte("PING"), ds[0].Sent[0].Payload)

	ds, err = e.RunSteps(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, ds, 4)
	assert.Equal(t, 5, e.Steps())
}

func TestEngine_PersistsRun(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(t, WithStore(s))
	ctx := context.Background()
	require.NoError(t, e.Begin(ctx, "ping pair", map[string]string{"fixture": "async"}))
	registerPingPair(t, e)

	_, err := e.Send(user, counterID, []byte("async"), 0, 0)
	require.NoError(t, err)
	_, err = e.RunUntilIdle(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Finish(ctx))

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "ping pair", run.Title)

	ds, err := s.ReadDispatches(ctx, "run-1")
	require.NoError(t, err)
	var got []string
	for _, d := range ds {
		got = append(got, d.State)
	}
	assert.Equal(t, []string{"suspended", "completed", "completed", "completed", "logged"}, got)
	assert.Equal(t, ds[0].Message.ID, ds[3].Message.ID, "the resumed task keeps its id")
	assert.Less(t, ds[0].Message.Seq, ds[3].Message.Seq)

	out, err := s.ReadOutgoing(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []byte{1, 0, 0, 0}, out[0].Payload)

	pages, err := s.ReadAllocations(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []ir.Allocation{{Page: 0, Program: counterID}, {Page: 1, Program: pingID}}, pages)
}

func TestEngine_FaultedTaskStillCommitsSends(t *testing.T) {
	boom := errors.New("boom")
	e := newTestEngine(t)
	require.NoError(t, e.Register(counterID, "sender", msg.HandlerFunc(func(ctx *msg.Context) error {
		if _, err := ctx.SendBytes(user, []byte("before"), 0, 0); err != nil {
			return err
		}
		return boom
	}), 0))

	_, err := e.Send(user, counterID, nil, 0, 0)
	require.NoError(t, err)
	ds, err := e.RunUntilIdle(context.Background())
	require.NoError(t, err)

	require.Len(t, ds, 2)
	assert.Equal(t, msg.TaskFaulted, ds[0].Outcome.State)
	assert.ErrorIs(t, ds[0].Outcome.Err, boom)
	assert.Equal(t, []byte("before"), e.Log()[0].Payload)
}

func TestEngine_GasExhaustion(t *testing.T) {
	e := newTestEngine(t, WithGasPerCall(10))
	require.NoError(t, e.Register(counterID, "spender", msg.HandlerFunc(func(ctx *msg.Context) error {
		for i := 0; i < 3; i++ {
			if _, err := ctx.SendBytes(user, []byte{byte(i)}, 0, 0); err != nil {
				return err
			}
		}
		return nil
	}), 0))

	_, err := e.Send(user, counterID, nil, 25, 0)
	require.NoError(t, err)
	ds, err := e.RunUntilIdle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, msg.TaskFaulted, ds[0].Outcome.State)
	assert.ErrorIs(t, ds[0].Outcome.Err, ErrGasExhausted)
	assert.Len(t, e.Log(), 2)
}

func TestEngine_UnknownReplyFaultsButRunContinues(t *testing.T) {
	e := newTestEngine(t)
	registerPingPair(t, e)

	stray := ir.MustNewMessageID(ir.MessageID{}, 42)
	require.True(t, e.Enqueue(ir.Message{
		ID:          ir.MustNewMessageID(stray, 0),
		Source:      pingID,
		Destination: counterID,
		Payload:     []byte("PONG"),
		ReplyTo:     stray,
	}))
	_, err := e.Send(user, pingID, []byte("PING"), 0, 0)
	require.NoError(t, err)

	ds, err := e.RunUntilIdle(context.Background())
	require.NoError(t, err)
	require.Len(t, ds, 3)

	code, ok := msg.FaultCodeOf(ds[0].Outcome.Err)
	require.True(t, ok)
	assert.Equal(t, msg.FaultUnknownReply, code)
	assert.Equal(t, msg.TaskCompleted, ds[1].Outcome.State)
	assert.True(t, ds[2].Logged)
}

func TestEngine_QuotaStopsRunaway(t *testing.T) {
	e := newTestEngine(t, WithMaxSteps(5))
	require.NoError(t, e.Register(counterID, "loop", msg.HandlerFunc(func(ctx *msg.Context) error {
		_, err := ctx.SendBytes(counterID, []byte("again"), 0, 0)
		return err
	}), 0))

	_, err := e.Send(user, counterID, nil, 0, 0)
	require.NoError(t, err)

	ds, err := e.RunUntilIdle(context.Background())
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.Len(t, ds, 6)
}

func TestEngine_RegisterErrors(t *testing.T) {
	e := newTestEngine(t, WithPageLimit(2))
	h := msg.HandlerFunc(func(*msg.Context) error { return nil })

	require.NoError(t, e.Register(counterID, "a", h, 1))
	err := e.Register(counterID, "b", h, 0)
	assert.True(t, IsProgramError(err))

	err = e.Register(pingID, "c", h, 5)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeProgramInit, re.Code)
}

func TestEngine_RunDrainsAfterStop(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Send(user, ir.ActorIDFromUint64(7), []byte("hi"), 0, 0)
	require.NoError(t, err)

	e.Stop()
	require.NoError(t, e.Run(context.Background()))
	assert.Len(t, e.Log(), 1)

	_, err = e.Send(user, pingID, nil, 0, 0)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_RunConcurrentSend(t *testing.T) {
	e := newTestEngine(t)
	registerPingPair(t, e)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	_, err := e.Send(user, pingID, []byte("PING"), 0, 0)
	require.NoError(t, err)

	e.Stop()
	require.NoError(t, <-done)
}

func TestEngine_MessageIDsAreDeterministic(t *testing.T) {
	run := func() []ir.Message {
		e := newTestEngine(t)
		registerPingPair(t, e)
		_, err := e.Send(user, counterID, []byte("async"), 0, 0)
		require.NoError(t, err)
		_, err = e.RunUntilIdle(context.Background())
		require.NoError(t, err)
		return e.Log()
	}
	assert.Equal(t, run(), run())
}

func TestStoreStatesMatchTaskStates(t *testing.T) {
	assert.Equal(t, store.StateCompleted, msg.TaskCompleted.String())
	assert.Equal(t, store.StateSuspended, msg.TaskSuspended.String())
	assert.Equal(t, store.StateFaulted, msg.TaskFaulted.String())
}
