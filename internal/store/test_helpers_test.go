package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Zombieliu/gear/internal/ir"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun registers a run with a fixed title.
func createTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.CreateRun(context.Background(), Run{ID: id, Title: "test"}); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
}

// createTestMessage builds a message from user 1 to dest.
func createTestMessage(nonce uint64, dest uint64, payload string, seq int64) ir.Message {
	return ir.Message{
		ID:          ir.MustNewMessageID(ir.MessageID{}, nonce),
		Source:      ir.ActorIDFromUint64(1),
		Destination: ir.ActorIDFromUint64(dest),
		Payload:     []byte(payload),
		GasLimit:    100_000_000,
		Seq:         seq,
	}
}
