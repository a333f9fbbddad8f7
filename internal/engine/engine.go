package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Zombieliu/gear/internal/codec"
	"github.com/Zombieliu/gear/internal/ir"
	"github.com/Zombieliu/gear/internal/msg"
	"github.com/Zombieliu/gear/internal/store"
)

const (
	// DefaultMaxSteps is the default dispatch quota per run.
	DefaultMaxSteps = 1000

	// DefaultGasLimit is the gas given to messages sent with a zero limit.
	DefaultGasLimit uint64 = 100_000_000

	// DefaultGasPerCall is the fee charged for every host call.
	DefaultGasPerCall uint64 = 1_000

	// DefaultPageLimit is the number of memory pages shared by all programs.
	DefaultPageLimit uint32 = 256
)

type program struct {
	id     ir.ActorID
	name   string
	driver *msg.Driver
}

// Dispatch reports what happened to one message taken off the queue.
type Dispatch struct {
	Message ir.Message
	Program string       // Empty when the message was logged
	Logged  bool         // Destination is not a program
	Outcome msg.Outcome  // Zero when Logged
	Sent    []ir.Message // Messages committed by the invocation
}

// Engine is the single-writer message loop.
//
// Thread-safety model:
//   - Send(), Enqueue(), Stop(): safe from any goroutine
//   - Register(), Step(), RunSteps(), RunUntilIdle(), Run(): one goroutine
//
// INVARIANTS:
//   - A message id is on the waitlist or in the queue, never both
//   - Every queued message carries a seq newer than anything dispatched
type Engine struct {
	store  *store.Store
	clock  LogicalClock
	queue  *messageQueue
	runIDs RunIDGenerator
	runID  string
	logger *slog.Logger
	codec  codec.Codec

	programs map[ir.ActorID]*program
	waitlist map[ir.MessageID]ir.Message
	nonces   map[ir.MessageID]uint64 // id nonce of suspended tasks
	woken    map[ir.MessageID]bool   // tasks queued by a wake, not yet dispatched
	memory   *pageTable
	log      []ir.Message

	maxSteps   int
	quota      *QuotaEnforcer
	gasPerCall uint64
	defaultGas uint64
	pageLimit  uint32
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithStore persists every dispatch, the outgoing log and the final page
// map under the engine's run id.
func WithStore(s *store.Store) EngineOption {
	return func(e *Engine) {
		e.store = s
	}
}

// WithMaxSteps sets the dispatch quota. 0 disables it.
func WithMaxSteps(maxSteps int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithClock replaces the logical clock.
func WithClock(c LogicalClock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRunIDGenerator replaces the UUIDv7 run id generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithGasPerCall sets the fee charged for each host call.
func WithGasPerCall(fee uint64) EngineOption {
	return func(e *Engine) {
		e.gasPerCall = fee
	}
}

// WithDefaultGas sets the gas of messages sent with a zero limit.
func WithDefaultGas(gas uint64) EngineOption {
	return func(e *Engine) {
		e.defaultGas = gas
	}
}

// WithPageLimit sets the number of memory pages.
func WithPageLimit(pages uint32) EngineOption {
	return func(e *Engine) {
		e.pageLimit = pages
	}
}

// WithLogger sets the logger for the engine and its programs.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithCodec sets the payload codec programs use.
func WithCodec(c codec.Codec) EngineOption {
	return func(e *Engine) {
		e.codec = c
	}
}

// New creates an Engine with a fresh run id.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		clock:      NewClock(),
		queue:      newMessageQueue(),
		runIDs:     UUIDv7Generator{},
		logger:     slog.Default(),
		codec:      codec.Binary,
		programs:   make(map[ir.ActorID]*program),
		waitlist:   make(map[ir.MessageID]ir.Message),
		nonces:     make(map[ir.MessageID]uint64),
		woken:      make(map[ir.MessageID]bool),
		maxSteps:   DefaultMaxSteps,
		gasPerCall: DefaultGasPerCall,
		defaultGas: DefaultGasLimit,
		pageLimit:  DefaultPageLimit,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.runID = e.runIDs.Generate()
	e.quota = NewQuotaEnforcer(e.maxSteps)
	e.memory = newPageTable(e.pageLimit)
	e.logger = e.logger.With("run", e.runID)
	return e
}

// RunID returns the id this engine's dispatches are stored under.
func (e *Engine) RunID() string {
	return e.runID
}

// Begin registers the run in the store. A no-op without a store.
func (e *Engine) Begin(ctx context.Context, title string, meta map[string]string) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.CreateRun(ctx, store.Run{ID: e.runID, Title: title, Meta: meta}); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// Register installs h as the program at id with the given number of
// initial memory pages.
func (e *Engine) Register(id ir.ActorID, name string, h msg.Handler, pages uint32) error {
	if _, exists := e.programs[id]; exists {
		return &RuntimeError{
			Code:    ErrCodeProgramExists,
			Message: "a program is already registered at this id",
			RunID:   e.runID,
			Program: id.String(),
		}
	}
	if pages > 0 {
		if _, err := e.memory.alloc(id, pages); err != nil {
			return &RuntimeError{
				Code:    ErrCodeProgramInit,
				Message: err.Error(),
				RunID:   e.runID,
				Program: id.String(),
				Details: map[string]string{"pages": fmt.Sprintf("%d", pages)},
			}
		}
	}

	driver := msg.NewDriver(h,
		msg.WithCodec(e.codec),
		msg.WithLogger(e.logger.With("program", name)),
	)
	e.programs[id] = &program{id: id, name: name, driver: driver}

	e.logger.Debug("program registered", "id", id.String(), "name", name, "pages", pages)
	return nil
}

// Registry returns the reply registry of the program at id.
func (e *Engine) Registry(id ir.ActorID) (*msg.Registry, bool) {
	p, ok := e.programs[id]
	if !ok {
		return nil, false
	}
	return p.driver.Registry(), true
}

// Send queues a message from outside the system.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Send(source, dest ir.ActorID, payload []byte, gasLimit, value uint64) (ir.MessageID, error) {
	seq := e.clock.Next()
	id, err := ir.ExternalMessageID(source, seq)
	if err != nil {
		return ir.MessageID{}, fmt.Errorf("send: %w", err)
	}
	if gasLimit == 0 {
		gasLimit = e.defaultGas
	}
	m := ir.Message{
		ID:          id,
		Source:      source,
		Destination: dest,
		Payload:     append([]byte(nil), payload...),
		GasLimit:    gasLimit,
		Value:       value,
		Seq:         seq,
	}
	if !e.queue.Enqueue(m) {
		return ir.MessageID{}, ErrStopped
	}
	return id, nil
}

// Enqueue queues m after stamping it with the next seq.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(m ir.Message) bool {
	m.Seq = e.clock.Next()
	return e.queue.Enqueue(m)
}

// Step dispatches the next queued message. It reports false when the
// queue is empty. The only errors are quota and store failures.
func (e *Engine) Step(ctx context.Context) (Dispatch, bool, error) {
	m, ok := e.queue.TryDequeue()
	if !ok {
		return Dispatch{}, false, nil
	}
	d, err := e.dispatch(ctx, m)
	return d, true, err
}

// RunSteps dispatches up to n messages, stopping early when idle.
func (e *Engine) RunSteps(ctx context.Context, n int) ([]Dispatch, error) {
	var out []Dispatch
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d, ok, err := e.Step(ctx)
		if !ok {
			break
		}
		out = append(out, d)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// RunUntilIdle dispatches until the queue is empty. Suspended tasks whose
// replies never come stay on the waitlist.
func (e *Engine) RunUntilIdle(ctx context.Context) ([]Dispatch, error) {
	var out []Dispatch
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d, ok, err := e.Step(ctx)
		if !ok {
			return out, nil
		}
		out = append(out, d)
		if err != nil {
			return out, err
		}
	}
}

// Run dispatches messages as they arrive until ctx is cancelled, Stop is
// called or the quota is exceeded.
//
// Store failures are logged and the loop continues: the in-memory state
// stays authoritative for the run.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		m, ok := e.queue.TryDequeue()
		if ok {
			if _, err := e.dispatch(ctx, m); err != nil {
				if IsQuotaError(err) {
					return err
				}
				e.logger.Error("dispatch failed",
					"error", err,
					"message", m.ID.Short(),
					"seq", m.Seq,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Stop, which makes this case
			// fire immediately.
			if e.queue.Len() == 0 && e.isStopped() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue, which makes Run return.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) isStopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

// Finish writes the final page map to the store. A no-op without a store.
func (e *Engine) Finish(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.WriteAllocations(ctx, e.runID, e.memory.snapshot()); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Log returns the messages addressed to non-program actors, in emission order.
func (e *Engine) Log() []ir.Message {
	return slices.Clone(e.log)
}

// Allocations returns the page map ordered by page number.
func (e *Engine) Allocations() []ir.Allocation {
	return e.memory.snapshot()
}

// Waiting returns the ids on the waitlist in id order.
func (e *Engine) Waiting() []ir.MessageID {
	ids := make([]ir.MessageID, 0, len(e.waitlist))
	for id := range e.waitlist {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, ir.MessageID.Compare)
	return ids
}

// QueueLen returns the number of queued messages.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Steps returns the number of dispatches so far.
func (e *Engine) Steps() int {
	return e.quota.Current()
}

// dispatch runs one message. CRITICAL: called only from the loop goroutine.
func (e *Engine) dispatch(ctx context.Context, m ir.Message) (Dispatch, error) {
	d := Dispatch{Message: m}

	if err := e.quota.Check(e.runID); err != nil {
		e.logger.Error("max dispatch quota exceeded",
			"message", m.ID.Short(),
			"steps", e.quota.Current(),
			"limit", e.maxSteps,
		)
		return d, NewQuotaError(e.runID, e.quota.Current(), e.maxSteps)
	}

	prog, ok := e.programs[m.Destination]
	if !ok {
		d.Logged = true
		position := len(e.log)
		e.log = append(e.log, m)
		e.logger.Debug("message logged",
			"message", m.ID.Short(),
			"dest", m.Destination.String(),
			"seq", m.Seq,
		)
		return d, e.persist(ctx, d, position)
	}

	e.logger.Debug("dispatching",
		"message", m.ID.Short(),
		"program", prog.name,
		"reply", m.IsReply(),
		"seq", m.Seq,
	)

	delete(e.woken, m.ID)
	inv := newInvocation(e, prog, m)
	if m.IsReply() {
		d.Outcome = prog.driver.HandleReply(inv)
	} else {
		d.Outcome = prog.driver.Handle(inv)
	}
	d.Program = prog.name

	if inv.waited {
		e.waitlist[m.ID] = m
		e.nonces[m.ID] = inv.nonce
	} else {
		delete(e.nonces, m.ID)
	}

	// Sent messages are committed whatever the outcome.
	for _, out := range inv.outbox {
		out.Seq = e.clock.Next()
		e.queue.Enqueue(out)
		d.Sent = append(d.Sent, out)
	}
	for _, woken := range inv.woken {
		e.Enqueue(woken)
	}

	e.logger.Debug("dispatched",
		"message", m.ID.Short(),
		"program", prog.name,
		"state", d.Outcome.State.String(),
		"sent", len(d.Sent),
	)
	return d, e.persist(ctx, d, -1)
}

// persist writes a dispatch (and, for logged messages, the outgoing entry
// at position) to the store.
func (e *Engine) persist(ctx context.Context, d Dispatch, position int) error {
	if e.store == nil {
		return nil
	}

	rec := store.Dispatch{Message: d.Message, State: store.StateLogged}
	if !d.Logged {
		rec.State = d.Outcome.State.String()
		if d.Outcome.Err != nil {
			rec.Error = d.Outcome.Err.Error()
		}
	}
	if err := e.store.WriteDispatch(ctx, e.runID, rec); err != nil {
		return err
	}
	if d.Logged {
		if err := e.store.WriteOutgoing(ctx, e.runID, position, d.Message); err != nil {
			return err
		}
	}
	return nil
}
