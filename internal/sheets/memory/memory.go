// Package memory is an in-process sheets.Exporter for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"budgetshare/internal/core"
	"budgetshare/internal/sheets"
)

type Exporter struct {
	mu   sync.Mutex
	rows map[int64]core.Transaction
}

var _ sheets.Exporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{rows: map[int64]core.Transaction{}}
}

// Upsert stores the transaction, keeping the highest version seen.
func (e *Exporter) Upsert(_ context.Context, tx core.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.rows[tx.ID]; ok && cur.Version > tx.Version {
		return nil
	}
	e.rows[tx.ID] = tx
	return nil
}

func (e *Exporter) Delete(_ context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rows, id)
	return nil
}

// Rows returns the exported transactions ordered by ID.
func (e *Exporter) Rows() []core.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.Transaction, 0, len(e.rows))
	for _, tx := range e.rows {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
