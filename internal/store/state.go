package store

import (
	"context"
	"fmt"

	"github.com/Zombieliu/gear/internal/ir"
)

// RunState summarizes a recorded run for recovery and inspection.
type RunState struct {
	Run        Run
	Dispatches int
	LastSeq    int64
	Completed  int
	Faulted    int
	Logged     int

	// Waiting lists tasks whose latest dispatch suspended, in seq order.
	// Their replies never arrived before the run ended.
	Waiting []ir.MessageID

	// IsComplete is true when something was dispatched and no task is
	// left waiting.
	IsComplete bool
}

// GetRunState reads a run and works out which of its tasks never resumed.
func (s *Store) GetRunState(ctx context.Context, runID string) (RunState, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	dispatches, err := s.ReadDispatches(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}

	state := RunState{Run: run, Dispatches: len(dispatches), Waiting: []ir.MessageID{}}

	// Dispatches come in seq order, so the last state seen per id wins.
	latest := make(map[ir.MessageID]string, len(dispatches))
	var order []ir.MessageID
	for _, d := range dispatches {
		if _, seen := latest[d.Message.ID]; !seen {
			order = append(order, d.Message.ID)
		}
		latest[d.Message.ID] = d.State
		state.LastSeq = max(state.LastSeq, d.Message.Seq)

		switch d.State {
		case StateCompleted:
			state.Completed++
		case StateFaulted:
			state.Faulted++
		case StateLogged:
			state.Logged++
		}
	}
	for _, id := range order {
		if latest[id] == StateSuspended {
			state.Waiting = append(state.Waiting, id)
		}
	}

	state.IsComplete = state.Dispatches > 0 && len(state.Waiting) == 0
	return state, nil
}

// FindIncompleteRuns returns the state of every run that ended with a
// task still waiting for a reply.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]RunState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT d.run_id
		FROM dispatches d
		WHERE d.state = ?
		  AND NOT EXISTS (
			SELECT 1 FROM dispatches later
			WHERE later.run_id = d.run_id
			  AND later.message_id = d.message_id
			  AND later.seq > d.seq
		  )
		ORDER BY d.run_id COLLATE BINARY ASC
	`, StateSuspended)
	if err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run ids: %w", err)
	}

	states := []RunState{}
	for _, id := range ids {
		state, err := s.GetRunState(ctx, id)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}
