package store

import (
	"context"
	"fmt"

	"github.com/Zombieliu/gear/internal/ir"
)

// CreateRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING so a run can be re-registered safely.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	meta, err := marshalMeta(run.Meta)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, title, meta)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Title, meta)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// WriteDispatch records one dispatched message.
// The run must exist (foreign key constraint). Seq is unique per run.
func (s *Store) WriteDispatch(ctx context.Context, runID string, d Dispatch) error {
	m := d.Message
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatches
		(run_id, seq, message_id, source, destination, reply_to, payload, gas_limit, value, state, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		m.Seq,
		m.ID.String(),
		m.Source.String(),
		m.Destination.String(),
		replyToText(m.ReplyTo),
		nonNilBytes(m.Payload),
		int64(m.GasLimit),
		int64(m.Value),
		d.State,
		d.Error,
	)
	if err != nil {
		return fmt.Errorf("write dispatch %d: %w", m.Seq, err)
	}
	return nil
}

// WriteOutgoing appends a message to the run's outgoing log at position.
func (s *Store) WriteOutgoing(ctx context.Context, runID string, position int, m ir.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outgoing
		(run_id, position, message_id, source, destination, reply_to, payload, gas_limit, value, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		position,
		m.ID.String(),
		m.Source.String(),
		m.Destination.String(),
		replyToText(m.ReplyTo),
		nonNilBytes(m.Payload),
		int64(m.GasLimit),
		int64(m.Value),
		m.Seq,
	)
	if err != nil {
		return fmt.Errorf("write outgoing %d: %w", position, err)
	}
	return nil
}

// WriteAllocations replaces the run's page map in a single transaction.
func (s *Store) WriteAllocations(ctx context.Context, runID string, pages []ir.Allocation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write allocations: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM allocations WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("write allocations: clear: %w", err)
	}
	for _, a := range pages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO allocations (run_id, page, program_id)
			VALUES (?, ?, ?)
		`, runID, int64(a.Page), a.Program.String()); err != nil {
			return fmt.Errorf("write allocations: page %d: %w", a.Page, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write allocations: commit: %w", err)
	}
	return nil
}

// nonNilBytes keeps empty payloads from being stored as NULL.
func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
