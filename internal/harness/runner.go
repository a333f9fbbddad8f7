package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Zombieliu/gear/internal/engine"
	"github.com/Zombieliu/gear/internal/ir"
	"github.com/Zombieliu/gear/internal/programs"
	"github.com/Zombieliu/gear/internal/store"
)

// Runner executes fixture documents. Every fixture gets a fresh engine
// with freshly built programs, so fixtures never share state.
type Runner struct {
	logger     *slog.Logger
	store      *store.Store
	engineOpts []engine.EngineOption
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger handed to every engine. Logs are discarded
// by default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithStore records every fixture run in s.
func WithStore(s *store.Store) Option {
	return func(r *Runner) {
		r.store = s
	}
}

// WithEngineOptions passes extra options to every engine, after the
// runner's own.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(r *Runner) {
		r.engineOpts = append(r.engineOpts, opts...)
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes doc with a default Runner.
func Run(doc *Document) (*Report, error) {
	return NewRunner().Run(context.Background(), doc)
}

// Run executes every fixture of doc in order. Fixture failures are
// reported, not returned; the error is only set when ctx ends.
func (r *Runner) Run(ctx context.Context, doc *Document) (*Report, error) {
	report := NewReport(doc.Title)
	for i := range doc.Fixtures {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Add(r.runFixture(ctx, doc, &doc.Fixtures[i]))
	}
	return report, nil
}

func (r *Runner) runFixture(ctx context.Context, doc *Document, f *Fixture) FixtureReport {
	fr := FixtureReport{Title: f.Title}

	want, pages, err := f.Expected.expectations()
	if err != nil {
		return initFailed(fr, err)
	}
	eng, err := r.Deploy(ctx, doc, f)
	if err != nil {
		return initFailed(fr, err)
	}
	fr.RunID = eng.RunID()

	if f.Expected.Step > 0 {
		_, err = eng.RunSteps(ctx, f.Expected.Step)
	} else {
		_, err = eng.RunUntilIdle(ctx)
	}
	if err == nil {
		err = eng.Finish(ctx)
	}
	if err != nil {
		r.logger.Warn("fixture run failed", "fixture", f.Title, "error", err)
		fr.Error = err.Error()
		fr.Output = fmt.Sprintf("Running error (%s)", err)
		return fr
	}

	var out strings.Builder
	fr.Mismatches = CheckMessages(&out, eng.Log(), want)
	fr.Mismatches += CheckAllocation(&out, eng.Allocations(), pages)
	fr.Output = out.String()
	fr.Pass = fr.Mismatches == 0

	r.logger.Debug("fixture verified",
		"fixture", f.Title,
		"steps", eng.Steps(),
		"mismatches", fr.Mismatches,
	)
	return fr
}

func initFailed(fr FixtureReport, err error) FixtureReport {
	fr.Error = err.Error()
	fr.Output = fmt.Sprintf("Initialization error (%s)", err)
	return fr
}

// Deploy builds a new engine with the document's programs and queues the
// fixture's messages without dispatching any of them.
func (r *Runner) Deploy(ctx context.Context, doc *Document, f *Fixture) (*engine.Engine, error) {
	opts := []engine.EngineOption{engine.WithLogger(r.logger)}
	if r.store != nil {
		opts = append(opts, engine.WithStore(r.store))
	}
	eng := engine.New(append(opts, r.engineOpts...)...)

	meta := map[string]string{"document": doc.Title, "fixture": f.Title}
	if err := eng.Begin(ctx, doc.Title+"/"+f.Title, meta); err != nil {
		return nil, err
	}

	for _, p := range doc.Programs {
		factory, err := programs.Lookup(p.Program)
		if err != nil {
			return nil, err
		}
		params := programs.Params{}
		if p.Target != 0 {
			params.Target = ir.ActorIDFromUint64(p.Target)
		}
		if err := eng.Register(ir.ActorIDFromUint64(p.ID), p.Program, factory(params), p.Pages); err != nil {
			return nil, err
		}
	}

	for i, m := range f.Messages {
		payload, err := m.Payload.Bytes()
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
		_, err = eng.Send(
			ir.ActorIDFromUint64(m.Source),
			ir.ActorIDFromUint64(m.Destination),
			payload,
			m.GasLimit,
			m.Value,
		)
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
	}
	return eng, nil
}
