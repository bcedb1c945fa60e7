package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/threadsync/internal/store"
)

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore implements store.Store. Outside a transaction it runs each
// call on the pool; inside RunInTx it runs on the transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

// NewStore creates a PostgresStore on pool.
func NewStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// RunInTx runs fn in a transaction that commits if fn returns nil. Nested
// calls join the outer transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &PostgresStore{pool: s.pool, q: tx, inTx: true})
	})
}

// WithAccountLock holds a session-level advisory lock keyed by the account id
// while fn runs, so concurrent processes serialize on the same account.
func (s *PostgresStore) WithAccountLock(ctx context.Context, accountID string, fn func(ctx context.Context) error) error {
	if s.inTx {
		return fn(ctx)
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for account lock: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, accountID); err != nil {
		return fmt.Errorf("failed to lock account %s: %w", accountID, err)
	}
	defer func() {
		// Unlock even when ctx is already canceled, the session would keep the lock otherwise.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, accountID); err != nil {
			_ = conn.Conn().Close(context.Background())
		}
	}()

	return fn(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// emptyIfNil keeps nil slices from being stored as SQL NULL arrays.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var _ store.Store = (*PostgresStore)(nil)
