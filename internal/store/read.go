package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Zombieliu/gear/internal/ir"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// ReadRun retrieves a single run by id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	var (
		run  Run
		meta string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, meta FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Title, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	if run.Meta, err = unmarshalMeta(meta); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns all runs ordered by id. Run ids are UUIDv7 in
// production, so this is creation order.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, meta FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run  Run
			meta string
		)
		if err := rows.Scan(&run.ID, &run.Title, &meta); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.Meta, err = unmarshalMeta(meta); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadDispatches returns the dispatches of a run ordered by seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadDispatches(ctx context.Context, runID string) ([]Dispatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, source, destination, reply_to, payload, gas_limit, value, seq, state, error
		FROM dispatches
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	return scanDispatches(rows)
}

// ReadDispatchesByMessage returns every dispatch of one message id across
// runs, ordered by run then seq. A suspended task shows up once per
// invocation.
func (s *Store) ReadDispatchesByMessage(ctx context.Context, id ir.MessageID) ([]Dispatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, source, destination, reply_to, payload, gas_limit, value, seq, state, error
		FROM dispatches
		WHERE message_id = ?
		ORDER BY run_id COLLATE BINARY ASC, seq ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	return scanDispatches(rows)
}

// ReadOutgoing returns the run's outgoing log in emission order.
func (s *Store) ReadOutgoing(ctx context.Context, runID string) ([]ir.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, source, destination, reply_to, payload, gas_limit, value, seq
		FROM outgoing
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outgoing: %w", err)
	}
	defer rows.Close()

	out := []ir.Message{}
	for rows.Next() {
		var (
			m        ir.Message
			row      messageRow
			gas, val int64
		)
		if err := rows.Scan(&row.id, &row.source, &row.destination, &row.replyTo,
			&m.Payload, &gas, &val, &m.Seq); err != nil {
			return nil, fmt.Errorf("scan outgoing: %w", err)
		}
		if err := row.parse(&m); err != nil {
			return nil, err
		}
		m.GasLimit, m.Value = uint64(gas), uint64(val)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outgoing: %w", err)
	}
	return out, nil
}

// ReadAllocations returns the run's page map ordered by page.
func (s *Store) ReadAllocations(ctx context.Context, runID string) ([]ir.Allocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page, program_id FROM allocations
		WHERE run_id = ?
		ORDER BY page ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	out := []ir.Allocation{}
	for rows.Next() {
		var (
			page    int64
			program string
		)
		if err := rows.Scan(&page, &program); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		owner, err := ir.ParseActorID(program)
		if err != nil {
			return nil, fmt.Errorf("allocation page %d: %w", page, err)
		}
		out = append(out, ir.Allocation{Page: uint32(page), Program: owner})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}
	return out, nil
}

func scanDispatches(rows *sql.Rows) ([]Dispatch, error) {
	out := []Dispatch{}
	for rows.Next() {
		var (
			d        Dispatch
			row      messageRow
			gas, val int64
		)
		if err := rows.Scan(&row.id, &row.source, &row.destination, &row.replyTo,
			&d.Message.Payload, &gas, &val, &d.Message.Seq, &d.State, &d.Error); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		if err := row.parse(&d.Message); err != nil {
			return nil, fmt.Errorf("dispatch %d: %w", d.Message.Seq, err)
		}
		d.Message.GasLimit, d.Message.Value = uint64(gas), uint64(val)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return out, nil
}
