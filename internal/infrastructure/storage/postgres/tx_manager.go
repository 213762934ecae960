package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AksahyDwivedi/pharmacy/internal/core/tx"
	"github.com/AksahyDwivedi/pharmacy/pkg/logger"
)

var tracer = otel.Tracer("pharmacy/postgres")

var _ tx.Manager = (*TxManager)(nil)

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout bounds every statement of the transaction; 0 disables it.
	StatementTimeout time.Duration
}

// DefaultTxOptions returns the options of RunInTransaction. Read committed is
// enough for the check-load-save sequences of updates: Save overwrites every
// column, so the last committed writer wins.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
	}
}

// TxManager runs functions inside database transactions carried by the
// context. Nested calls join the outermost transaction.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{pool: pool.Pool}
}

// txKey is the context key for active transaction.
type txKey struct{}

// Tx is the transaction stored in the context.
type Tx struct {
	pgx.Tx
	afterCommit []func()
}

// RunInTransaction executes fn within a transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, DefaultTxOptions(), fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
// opts are ignored when ctx already carries a transaction.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "db.transaction",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
		))
	defer span.End()

	hooks, err := m.run(ctx, opts, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.Int("tx.after_commit", len(hooks)))
	for _, hook := range hooks {
		hook()
	}
	return nil
}

// run begins, executes and commits one transaction. It returns the hooks
// registered with AfterCommit while fn ran.
func (m *TxManager) run(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) ([]func(), error) {
	pgxTx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	if opts.StatementTimeout > 0 {
		_, err = pgxTx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds()))
		if err != nil {
			rollback(ctx, pgxTx, err)
			return nil, fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	current := &Tx{Tx: pgxTx}
	if err := fn(context.WithValue(ctx, txKey{}, current)); err != nil {
		rollback(ctx, pgxTx, err)
		return nil, err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return current.afterCommit, nil
}

// rollback uses a fresh context so the rollback is sent even when ctx was
// cancelled.
func rollback(ctx context.Context, pgxTx pgx.Tx, cause error) {
	if err := pgxTx.Rollback(context.Background()); err != nil {
		logger.Error(ctx, "rollback failed", "error", err, "original_error", cause)
	}
}

// AfterCommit runs fn after the transaction in ctx commits, or now when
// there is none. Hooks run in registration order on the committing goroutine.
func (m *TxManager) AfterCommit(ctx context.Context, fn func()) {
	if current := m.GetTx(ctx); current != nil {
		current.afterCommit = append(current.afterCommit, fn)
		return
	}
	fn()
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if current, ok := ctx.Value(txKey{}).(*Tx); ok {
		return current
	}
	return nil
}

// Querier is satisfied by both the pool and a transaction, so repositories
// work inside and outside RunInTransaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns appropriate querier for context.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if current := m.GetTx(ctx); current != nil {
		return current.Tx
	}
	return m.pool
}
