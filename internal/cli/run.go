package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Zombieliu/gear/internal/engine"
	"github.com/Zombieliu/gear/internal/harness"
	"github.com/Zombieliu/gear/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Fixture  string
	Steps    int
	Database string

	// RunIDs overrides the run id generator (for testing).
	RunIDs engine.RunIDGenerator
}

// DispatchView is one line of the run timeline.
type DispatchView struct {
	Seq         int64  `json:"seq"`
	Message     string `json:"message"`
	Destination string `json:"destination"`
	Program     string `json:"program,omitempty"`
	Reply       bool   `json:"reply,omitempty"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	Sent        int    `json:"sent,omitempty"`
}

// RunResult is what the run command prints.
type RunResult struct {
	RunID      string          `json:"run_id"`
	Fixture    string          `json:"fixture"`
	Timeline   []DispatchView  `json:"timeline"`
	Waiting    []string        `json:"waiting"`
	Outgoing   []OutgoingView  `json:"outgoing"`
	Allocation []ir.Allocation `json:"allocation"`
}

// OutgoingView is a message that left the system.
type OutgoingView struct {
	Destination string `json:"destination"`
	Payload     string `json:"payload"` // hex
}

// WriteText implements textWriter.
func (r RunResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Run %s (fixture %s)\n", r.RunID, r.Fixture)
	fmt.Fprintln(w, "Timeline:")
	for _, d := range r.Timeline {
		target := d.Program
		if target == "" {
			target = "-> " + d.Destination
		}
		kind := ""
		if d.Reply {
			kind = " reply"
		}
		fmt.Fprintf(w, "  [%d] %s%s %s %s", d.Seq, d.Message, kind, target, d.State)
		if d.Sent > 0 {
			fmt.Fprintf(w, " sent=%d", d.Sent)
		}
		if d.Error != "" {
			fmt.Fprintf(w, " error=%q", d.Error)
		}
		fmt.Fprintln(w)
	}
	if len(r.Waiting) > 0 {
		fmt.Fprintf(w, "Waiting: %d\n", len(r.Waiting))
		for _, id := range r.Waiting {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	fmt.Fprintf(w, "Outgoing: %d\n", len(r.Outgoing))
	for _, m := range r.Outgoing {
		fmt.Fprintf(w, "  -> %s 0x%s\n", m.Destination, m.Payload)
	}
	fmt.Fprintf(w, "Pages: %d\n", len(r.Allocation))
	for _, a := range r.Allocation {
		fmt.Fprintf(w, "  %d %s\n", a.Page, a.Program)
	}
	return nil
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <document>",
		Short: "Run one fixture and print its dispatch timeline",
		Long: `Deploy a document's programs, inject one fixture's messages and
dispatch them, printing every step: which program handled which
message, how the task ended and what it sent.

The fixture's expectations are not checked; use "gtest test" for that.
Ctrl-C stops the run after the current dispatch.

Examples:
  gtest run fixtures/sync_duplicate.yaml --fixture single-async
  gtest run fixtures/sync_duplicate.yaml --fixture single-async --steps 2
  gtest run fixtures/alloc.yaml --fixture grow --db runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixture(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Fixture, "fixture", "", "fixture title (default: the first fixture)")
	cmd.Flags().IntVar(&opts.Steps, "steps", 0, "stop after this many dispatches (0: until idle)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")

	return cmd
}

func runFixture(opts *RunOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	logger := opts.logger()

	doc, err := harness.LoadDocument(path)
	if err != nil {
		_ = out.Error(ErrCodeLoad, err.Error(), map[string]string{"path": path})
		return WrapExitError(ExitCommandError, "failed to load document", err)
	}
	fixture := &doc.Fixtures[0]
	if opts.Fixture != "" {
		f, ok := doc.Fixture(opts.Fixture)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("no fixture %q in %s", opts.Fixture, path))
		}
		fixture = f
	}

	st, err := opts.openStore(opts.Database)
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	if st != nil {
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	engineOpts, err := opts.engineOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid engine config", err)
	}
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	runnerOpts := []harness.Option{
		harness.WithLogger(logger),
		harness.WithEngineOptions(engineOpts...),
	}
	if st != nil {
		runnerOpts = append(runnerOpts, harness.WithStore(st))
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := harness.NewRunner(runnerOpts...).Deploy(ctx, doc, fixture)
	if err != nil {
		_ = out.Error(ErrCodeRun, err.Error(), nil)
		return WrapExitError(ExitFailure, "initialization error", err)
	}
	logger.Info("run starting", "run", eng.RunID(), "fixture", fixture.Title)

	var dispatches []engine.Dispatch
	if opts.Steps > 0 {
		dispatches, err = eng.RunSteps(ctx, opts.Steps)
	} else {
		dispatches, err = eng.RunUntilIdle(ctx)
	}
	if err == nil {
		err = eng.Finish(ctx)
	}

	result := buildRunResult(eng, fixture.Title, dispatches)
	if printErr := out.Success(result); printErr != nil {
		return printErr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "running error", err)
	}
	return nil
}

func buildRunResult(eng *engine.Engine, fixture string, dispatches []engine.Dispatch) RunResult {
	r := RunResult{
		RunID:      eng.RunID(),
		Fixture:    fixture,
		Timeline:   make([]DispatchView, 0, len(dispatches)),
		Waiting:    []string{},
		Outgoing:   []OutgoingView{},
		Allocation: eng.Allocations(),
	}
	for _, d := range dispatches {
		v := DispatchView{
			Seq:         d.Message.Seq,
			Message:     d.Message.ID.Short(),
			Destination: d.Message.Destination.String(),
			Program:     d.Program,
			Reply:       d.Message.IsReply(),
			State:       "logged",
			Sent:        len(d.Sent),
		}
		if !d.Logged {
			v.State = d.Outcome.State.String()
			if d.Outcome.Err != nil {
				v.Error = d.Outcome.Err.Error()
			}
		}
		r.Timeline = append(r.Timeline, v)
	}
	for _, id := range eng.Waiting() {
		r.Waiting = append(r.Waiting, id.String())
	}
	for _, m := range eng.Log() {
		r.Outgoing = append(r.Outgoing, OutgoingView{
			Destination: m.Destination.String(),
			Payload:     fmt.Sprintf("%x", m.Payload),
		})
	}
	return r
}
