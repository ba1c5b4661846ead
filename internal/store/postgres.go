package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/procurefin/internal/domain"
)

// ErrIdempotencyConflict is returned when another request holds the key.
var ErrIdempotencyConflict = errors.New("request in progress")

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	*Queries
	Db *pgxpool.Pool
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Queries: &Queries{db: pool}, Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Db.Ping(ctx)
}

// InTx runs fn in a read-committed transaction. Writers serialize on advisory
// and row locks, so every statement after a lock must see the previous
// holder's committed rows.
func (s *Store) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// Queries holds every statement the services issue, over a pool or a
// transaction.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, what, id)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// LockParty serializes ledger writes for one party until the transaction ends.
func (q *Queries) LockParty(ctx context.Context, partyID string) error {
	_, err := q.db.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended('party:' || $1::text, 0))", partyID)
	if err != nil {
		return fmt.Errorf("lock party %s: %w", partyID, err)
	}
	return nil
}

// LockPlan serializes snapshot regeneration and status changes for one plan.
func (q *Queries) LockPlan(ctx context.Context, planID string) error {
	_, err := q.db.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended('plan:' || $1::text, 0))", planID)
	if err != nil {
		return fmt.Errorf("lock plan %s: %w", planID, err)
	}
	return nil
}

// LockPlanShared lets postings into a plan run side by side while keeping
// LockPlan holders out. Plan locks are always taken before party locks.
func (q *Queries) LockPlanShared(ctx context.Context, planID string) error {
	_, err := q.db.Exec(ctx, "SELECT pg_advisory_xact_lock_shared(hashtextextended('plan:' || $1::text, 0))", planID)
	if err != nil {
		return fmt.Errorf("lock plan %s shared: %w", planID, err)
	}
	return nil
}
