package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cashflow/internal/core"
	ports "cashflow/internal/sheets"
)

// Store keeps the exported ledger in memory, for development without Google
// credentials and for tests.
type Store struct {
	mu    sync.Mutex
	rows  [][]string
	index map[string]int
}

var _ ports.SnapshotWriter = (*Store)(nil)

func New() *Store {
	return &Store{index: map[string]int{}}
}

// AppendSnapshot stores the snapshot once and returns a synthetic row reference.
func (s *Store) AppendSnapshot(_ context.Context, snap core.DebtMonthlySnapshot) (string, error) {
	if snap.ID == "" {
		return "", errors.New("snapshot without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.index[snap.ID]; ok {
		return fmt.Sprintf("mem:%d", row), nil
	}
	s.rows = append(s.rows, ports.LedgerRow(snap))
	s.index[snap.ID] = len(s.rows)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of the ledger rows in insertion order.
func (s *Store) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
