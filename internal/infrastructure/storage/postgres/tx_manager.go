package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/tx")

var (
	_ tx.ReadOnlyManager = (*TxManager)(nil)
	_ tx.LongRunner      = (*TxManager)(nil)
)

// TxOptions configures a transaction started by TxManager.
type TxOptions struct {
	IsolationLevel pgx.TxIsoLevel
	AccessMode     pgx.TxAccessMode

	// StatementTimeout is applied with SET LOCAL. Zero leaves the server default.
	StatementTimeout time.Duration

	// UseSavepoint makes a nested call roll back independently of the outer
	// transaction. Without it nested calls simply join.
	UseSavepoint bool
}

// DefaultTxOptions is read-committed, read-write with a 30s statement timeout.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
	}
}

// SerializableTxOptions upgrades DefaultTxOptions to serializable isolation.
func SerializableTxOptions() TxOptions {
	o := DefaultTxOptions()
	o.IsolationLevel = pgx.Serializable
	return o
}

// SyncTxOptions is used by the snapshot sync: one long all-or-nothing unit
// with a wider statement timeout than request-scoped work.
func SyncTxOptions() TxOptions {
	o := DefaultTxOptions()
	o.IsolationLevel = pgx.RepeatableRead
	o.StatementTimeout = 5 * time.Minute
	return o
}

func (o TxOptions) pgx() pgx.TxOptions {
	return pgx.TxOptions{IsoLevel: o.IsolationLevel, AccessMode: o.AccessMode}
}

// TxManager runs ledger work in pgx transactions carried on the context.
// Nested calls join the outer transaction unless UseSavepoint is set, so a
// count approval and the corrective movements it issues commit together.
type TxManager struct {
	pool       *pgxpool.Pool
	savepoints atomic.Uint64
}

// NewTxManager creates a transaction manager over pool.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{pool: pool.Pool}
}

// NewTxManagerFromRawPool is NewTxManager for callers holding a bare pgxpool.
func NewTxManagerFromRawPool(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

type txKey struct{}

// Tx is the transaction stored on the context.
type Tx struct {
	pgx.Tx
	depth int
}

// RunInTransaction executes fn with DefaultTxOptions.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, DefaultTxOptions(), fn)
}

// RunInTransactionWithOptions executes fn inside a transaction. When ctx
// already carries one, fn joins it (or runs under a savepoint) and opts
// other than UseSavepoint are ignored.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) (err error) {
	outer := m.GetTx(ctx)

	ctx, span := tracer.Start(ctx, "transaction", trace.WithAttributes(
		attribute.String("tx.isolation", string(opts.IsolationLevel)),
		attribute.Bool("tx.read_only", opts.AccessMode == pgx.ReadOnly),
		attribute.Bool("tx.nested", outer != nil),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	switch {
	case outer == nil:
		return m.begin(ctx, opts, fn)
	case opts.UseSavepoint:
		return m.withSavepoint(ctx, outer, fn)
	default:
		return fn(ctx)
	}
}

func (m *TxManager) begin(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	ptx, err := m.pool.BeginTx(ctx, opts.pgx())
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if opts.StatementTimeout > 0 {
		stmt := "SET LOCAL statement_timeout = " + strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
		if _, err := ptx.Exec(ctx, stmt); err != nil {
			rollback(ctx, ptx, err)
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, &Tx{Tx: ptx})); err != nil {
		rollback(ctx, ptx, err)
		return err
	}

	if err := ptx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (m *TxManager) withSavepoint(ctx context.Context, outer *Tx, fn func(ctx context.Context) error) error {
	name := "sp_" + strconv.FormatUint(m.savepoints.Add(1), 10)
	if _, err := outer.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	inner := &Tx{Tx: outer.Tx, depth: outer.depth + 1}
	if err := fn(context.WithValue(ctx, txKey{}, inner)); err != nil {
		if _, rbErr := outer.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", name, "error", rbErr)
			return errors.Join(err, rbErr)
		}
		return err
	}

	if _, err := outer.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// rollback runs on a detached context so a cancelled request still
// releases its connection cleanly.
func rollback(ctx context.Context, ptx pgx.Tx, cause error) {
	if err := ptx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Error(ctx, "rollback failed", "error", err, "cause", cause)
	}
}

// GetTx returns the transaction carried by ctx, or nil.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	t, _ := ctx.Value(txKey{}).(*Tx)
	return t
}

// Querier is satisfied by both pgx.Tx and the pool, so repositories work
// inside and outside transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// GetQuerier returns the context transaction if there is one, else the pool.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}

// Pool exposes the underlying pool for infrastructure that must run outside
// request transactions (outbox relay, idempotency cleanup).
func (m *TxManager) Pool() *pgxpool.Pool {
	return m.pool
}

// ReadOnly executes fn in a read-only transaction.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	o := DefaultTxOptions()
	o.AccessMode = pgx.ReadOnly
	return m.RunInTransactionWithOptions(ctx, o, fn)
}

// RunLong executes fn with SyncTxOptions.
func (m *TxManager) RunLong(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, SyncTxOptions(), fn)
}
