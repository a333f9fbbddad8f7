package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Zombieliu/gear/internal/ir"
	"github.com/Zombieliu/gear/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	RunID      string
	Message    string // optional: only dispatches of this message id
	Incomplete bool   // list only runs left with waiting tasks
}

// TraceEvent is one recorded dispatch.
type TraceEvent struct {
	Seq         int64  `json:"seq"`
	Message     string `json:"message"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	ReplyTo     string `json:"reply_to,omitempty"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	Payload     string `json:"payload"` // hex
}

// TraceStats summarizes a run.
type TraceStats struct {
	Dispatches int  `json:"dispatches"`
	Completed  int  `json:"completed"`
	Suspended  int  `json:"suspended"`
	Faulted    int  `json:"faulted"`
	Logged     int  `json:"logged"`
	IsComplete bool `json:"is_complete"`
}

// TraceResult holds the trace of one run.
type TraceResult struct {
	Run        store.Run       `json:"run"`
	Timeline   []TraceEvent    `json:"timeline"`
	Outgoing   []TraceEvent    `json:"outgoing"`
	Allocation []ir.Allocation `json:"allocation"`
	Waiting    []string        `json:"waiting"`
	Stats      TraceStats      `json:"stats"`
}

// RunList is the trace output when no run is selected.
type RunList struct {
	Runs []store.Run `json:"runs"`
}

// MessageHistory lists every dispatch of one message id across runs.
type MessageHistory struct {
	Message  string       `json:"message"`
	Timeline []TraceEvent `json:"timeline"`
}

// WriteText implements textWriter.
func (h MessageHistory) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Message: %s\n", h.Message)
	for _, e := range h.Timeline {
		fmt.Fprintf(w, "  [%d] %s -> %s %s\n", e.Seq, e.Source, e.Destination, e.State)
	}
	return nil
}

// WriteText implements textWriter.
func (l RunList) WriteText(w io.Writer) error {
	if len(l.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	for _, r := range l.Runs {
		fmt.Fprintf(w, "%s  %s\n", r.ID, r.Title)
	}
	return nil
}

// WriteText implements textWriter.
func (r TraceResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Run: %s\n", r.Run.ID)
	if r.Run.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", r.Run.Title)
	}
	fmt.Fprintln(w, "\nTimeline:")
	for _, e := range r.Timeline {
		fmt.Fprintf(w, "  [%d] %s %s -> %s %s", e.Seq, e.Message, e.Source, e.Destination, e.State)
		if e.ReplyTo != "" {
			fmt.Fprintf(w, " reply_to=%s", e.ReplyTo)
		}
		if e.Error != "" {
			fmt.Fprintf(w, " error=%q", e.Error)
		}
		fmt.Fprintln(w)
	}
	if len(r.Waiting) > 0 {
		fmt.Fprintln(w, "\nWaiting:")
		for _, id := range r.Waiting {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	fmt.Fprintln(w, "\nOutgoing:")
	for _, e := range r.Outgoing {
		fmt.Fprintf(w, "  -> %s 0x%s\n", e.Destination, e.Payload)
	}
	fmt.Fprintln(w, "\nAllocation:")
	for _, a := range r.Allocation {
		fmt.Fprintf(w, "  %d %s\n", a.Page, a.Program)
	}
	s := r.Stats
	fmt.Fprintf(w, "\nStats: %d dispatches, %d completed, %d suspended, %d faulted, %d logged\n",
		s.Dispatches, s.Completed, s.Suspended, s.Faulted, s.Logged)
	status := "complete"
	if !s.IsComplete {
		status = "incomplete"
	}
	_, err := fmt.Fprintf(w, "Status: %s\n", status)
	return err
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded runs",
		Long: `Read the run log written by "gtest test --db" or "gtest run --db".

Without --run, lists the recorded runs (with --incomplete, only those
that ended with a task still waiting), or with --message the history of
one message id across runs. With --run, shows the run's
dispatch timeline (a suspended task appears once per invocation), the
messages that left the system and the final page map.

Examples:
  gtest trace --db runs.db
  gtest trace --db runs.db --run 0192f5c4-...
  gtest trace --db runs.db --message 3fa1...
  gtest trace --db runs.db --run 0192f5c4-... --message 3fa1... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: store.path from config)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show")
	cmd.Flags().StringVar(&opts.Message, "message", "", "only show dispatches of this message id")
	cmd.Flags().BoolVar(&opts.Incomplete, "incomplete", false, "list only runs that ended with tasks waiting")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	st, err := opts.openStore(opts.Database)
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	if st == nil {
		return NewExitError(ExitCommandError, "no database: pass --db or set store.path in the config")
	}
	defer st.Close()

	if opts.RunID == "" && opts.Message != "" {
		history, err := buildHistory(ctx, st, opts.Message)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read message history", err)
		}
		return out.Success(history)
	}

	if opts.RunID == "" && opts.Incomplete {
		states, err := st.FindIncompleteRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find incomplete runs", err)
		}
		runs := make([]store.Run, 0, len(states))
		for _, s := range states {
			runs = append(runs, s.Run)
		}
		return out.Success(RunList{Runs: runs})
	}

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return out.Success(RunList{Runs: runs})
	}

	result, err := buildTrace(ctx, st, opts.RunID, opts.Message)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			_ = out.Error(ErrCodeStore, err.Error(), map[string]string{"run": opts.RunID})
		}
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	return out.Success(result)
}

func buildTrace(ctx context.Context, st *store.Store, runID, message string) (TraceResult, error) {
	state, err := st.GetRunState(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}

	dispatches, err := st.ReadDispatches(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	if message != "" {
		id, err := ir.ParseMessageID(message)
		if err != nil {
			return TraceResult{}, err
		}
		dispatches = slices.DeleteFunc(dispatches, func(d store.Dispatch) bool {
			return d.Message.ID != id
		})
	}

	outgoing, err := st.ReadOutgoing(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	pages, err := st.ReadAllocations(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{
		Run:        state.Run,
		Waiting:    make([]string, 0, len(state.Waiting)),
		Timeline:   make([]TraceEvent, 0, len(dispatches)),
		Outgoing:   make([]TraceEvent, 0, len(outgoing)),
		Allocation: pages,
		Stats:      TraceStats{IsComplete: state.IsComplete},
	}
	for _, id := range state.Waiting {
		result.Waiting = append(result.Waiting, id.String())
	}
	for _, d := range dispatches {
		result.Timeline = append(result.Timeline, traceEvent(d.Message, d.State, d.Error))
		result.Stats.Dispatches++
		switch d.State {
		case store.StateCompleted:
			result.Stats.Completed++
		case store.StateSuspended:
			result.Stats.Suspended++
		case store.StateFaulted:
			result.Stats.Faulted++
		case store.StateLogged:
			result.Stats.Logged++
		}
	}
	for _, m := range outgoing {
		result.Outgoing = append(result.Outgoing, traceEvent(m, store.StateLogged, ""))
	}
	return result, nil
}

func buildHistory(ctx context.Context, st *store.Store, message string) (MessageHistory, error) {
	id, err := ir.ParseMessageID(message)
	if err != nil {
		return MessageHistory{}, err
	}
	dispatches, err := st.ReadDispatchesByMessage(ctx, id)
	if err != nil {
		return MessageHistory{}, err
	}
	h := MessageHistory{Message: id.String(), Timeline: make([]TraceEvent, 0, len(dispatches))}
	for _, d := range dispatches {
		h.Timeline = append(h.Timeline, traceEvent(d.Message, d.State, d.Error))
	}
	return h, nil
}

func traceEvent(m ir.Message, state, errText string) TraceEvent {
	e := TraceEvent{
		Seq:         m.Seq,
		Message:     m.ID.Short(),
		Source:      m.Source.String(),
		Destination: m.Destination.String(),
		State:       state,
		Error:       errText,
		Payload:     fmt.Sprintf("%x", m.Payload),
	}
	if m.IsReply() {
		e.ReplyTo = m.ReplyTo.Short()
	}
	return e
}
