package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type TxContextKey struct{}

type pgxTransactor struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

// NewPgxTransactor runs transactions at READ COMMITTED. Group-scoped writes
// take their own row locks, so a stricter level is not needed.
func NewPgxTransactor(pool *pgxpool.Pool) Transactor {
	return &pgxTransactor{
		pool: pool,
		opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
	}
}

// WithinTransaction commits when fn returns nil and rolls back otherwise.
// A ctx that already carries a transaction joins it.
func (t *pgxTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(TxContextKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	err := pgx.BeginTxFunc(ctx, t.pool, t.opts, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, TxContextKey{}, tx))
	})
	if err != nil {
		return errors.Wrap(err, "transaction failed")
	}
	return nil
}

// GetPgxExecutorFromContext returns the transaction carried by ctx, or the
// pool when there is none.
func GetPgxExecutorFromContext(ctx context.Context, pool *pgxpool.Pool) Executor {
	if tx, ok := ctx.Value(TxContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}
