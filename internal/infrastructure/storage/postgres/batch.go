package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var errBatchNoTx = errors.New("bulk write requires transaction context")

// CopyRows streams rows into table with the COPY protocol. Rows match
// columns positionally. Session creation freezes thousands of count lines
// this way.
func (m *TxManager) CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	t := m.GetTx(ctx)
	if t == nil {
		return 0, errBatchNoTx
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := t.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// SendBatch runs every queued statement in one round trip and sums the
// affected rows. It stops at the first failing statement.
func (m *TxManager) SendBatch(ctx context.Context, b *pgx.Batch) (int64, error) {
	t := m.GetTx(ctx)
	if t == nil {
		return 0, errBatchNoTx
	}
	if b.Len() == 0 {
		return 0, nil
	}

	res := t.SendBatch(ctx, b)
	var total int64
	for i := range b.Len() {
		tag, err := res.Exec()
		if err != nil {
			_ = res.Close()
			return total, fmt.Errorf("batch statement %d: %w", i, err)
		}
		total += tag.RowsAffected()
	}
	return total, res.Close()
}
