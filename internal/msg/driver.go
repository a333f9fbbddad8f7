package msg

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/Zombieliu/gear/internal/codec"
	"github.com/Zombieliu/gear/internal/ir"
)

// Handler processes one inbound message.
//
// Returning ErrPending (or an error wrapping it) suspends the task until a
// reply it awaits arrives. Returning nil completes it. Any other error
// fails it.
type Handler interface {
	Handle(ctx *Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx *Context) error

// Handle calls f(ctx).
func (f HandlerFunc) Handle(ctx *Context) error { return f(ctx) }

// TaskState is where an invocation of a task ended up.
type TaskState int

const (
	TaskFresh TaskState = iota
	TaskRunning
	TaskCompleted
	TaskSuspended
	TaskFaulted
)

// String returns the string representation of TaskState.
func (s TaskState) String() string {
	switch s {
	case TaskFresh:
		return "fresh"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskSuspended:
		return "suspended"
	case TaskFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Outcome reports how one invocation ended.
type Outcome struct {
	Task  ir.MessageID
	State TaskState
	Err   error // Set when State is TaskFaulted
}

// Driver runs a program's handler once per invocation and owns the
// program's Registry.
type Driver struct {
	handler Handler
	codec   codec.Codec
	logger  *slog.Logger

	regOnce sync.Once
	reg     *Registry
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithCodec sets the codec for Context.Load, Send, Reply and typed futures.
func WithCodec(c codec.Codec) DriverOption {
	return func(d *Driver) {
		d.codec = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = l
	}
}

// WithRegistry makes the driver use reg instead of creating its own.
func WithRegistry(reg *Registry) DriverOption {
	return func(d *Driver) {
		d.reg = reg
	}
}

// NewDriver creates a driver for h.
func NewDriver(h Handler, opts ...DriverOption) *Driver {
	d := &Driver{
		handler: h,
		codec:   codec.Binary,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the program's reply registry, creating it on first use.
func (d *Driver) Registry() *Registry {
	d.regOnce.Do(func() {
		if d.reg == nil {
			d.reg = NewRegistry()
		}
	})
	return d.reg
}

// Handle is the entry point for a regular (non-reply) message. It runs the
// handler until it completes, fails or returns ErrPending; in the last case
// it calls host.Wait and reports TaskSuspended.
//
// Faults raised by the handler or the reply machinery are recovered here,
// logged and reported as TaskFaulted. Nothing else recovers them.
func (d *Driver) Handle(host Host) (out Outcome) {
	task := host.MessageID()
	reg := d.Registry()
	logger := d.logger.With("task", task.Short())

	ctx := &Context{
		host:    host,
		reg:     reg,
		codec:   d.codec,
		task:    task,
		journal: reg.beginTask(task),
		logger:  logger,
	}
	out = Outcome{Task: task, State: TaskRunning}

	defer func() {
		if r := recover(); r != nil {
			out = d.fail(reg, task, logger, recoverFault(r, task))
		}
	}()

	err := d.handler.Handle(ctx)
	switch {
	case errors.Is(err, ErrPending):
		host.Wait()
		logger.Debug("task suspended")
		out.State = TaskSuspended
		return out
	case err != nil:
		return d.fail(reg, task, logger, err)
	case ctx.pendingSeen:
		return d.fail(reg, task, logger, newFault(FaultPendingSwallowed, task,
			"handler returned without suspending on a pending reply"))
	}

	reg.endTask(task)
	logger.Debug("task completed")
	out.State = TaskCompleted
	return out
}

// HandleReply is the entry point for a reply. It records the payload under
// the id the reply answers and wakes the awaiting task.
func (d *Driver) HandleReply(host Host) (out Outcome) {
	id := host.MessageID()
	reg := d.Registry()
	logger := d.logger.With("reply", id.Short(), "reply_to", host.ReplyTo().Short())
	out = Outcome{Task: id, State: TaskRunning}

	defer func() {
		if r := recover(); r != nil {
			out = d.fail(reg, id, logger, recoverFault(r, id))
		}
	}()

	if err := reg.Record(host, host.ReplyTo(), host.Payload()); err != nil {
		return d.fail(reg, id, logger, err)
	}
	logger.Debug("reply recorded")
	out.State = TaskCompleted
	return out
}

func (d *Driver) fail(reg *Registry, task ir.MessageID, logger *slog.Logger, err error) Outcome {
	reg.endTask(task)
	if code, ok := FaultCodeOf(err); ok {
		logger.Error("task faulted", "code", string(code), "error", err)
	} else {
		logger.Error("task failed", "error", err)
	}
	return Outcome{Task: task, State: TaskFaulted, Err: err}
}
