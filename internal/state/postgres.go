package state

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgxpool.Pool the tracker needs. It exists so the
// tracker can be exercised against pgxmock in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS batch_state (
    source       TEXT NOT NULL,
    batch        INT NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (source, batch)
)`

// Postgres implements Tracker on a shared database, allowing multiple
// pipeline workers to process batches safely: MarkDone is a compare-and-set
// insert, so concurrent markers for the same batch collapse to one row.
type Postgres struct {
	db Querier
}

// NewPostgres connects to the database, verifies the connection, and
// ensures the batch_state table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure batch_state schema: %w", err)
	}
	return &Postgres{db: pool}, nil
}

// NewPostgresWithQuerier wraps an existing connection pool (or mock).
func NewPostgresWithQuerier(db Querier) *Postgres {
	return &Postgres{db: db}
}

// IsDone reports whether a completion row exists for the batch.
func (p *Postgres) IsDone(ctx context.Context, source string, batch int) (bool, error) {
	var done bool
	err := p.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM batch_state WHERE source = $1 AND batch = $2)`,
		source, batch,
	).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("query batch_state for %s batch %d: %w", source, batch, err)
	}
	return done, nil
}

// MarkDone inserts the completion row if absent.
func (p *Postgres) MarkDone(ctx context.Context, source string, batch int) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO batch_state (source, batch) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		source, batch,
	)
	if err != nil {
		return fmt.Errorf("insert batch_state for %s batch %d: %w", source, batch, err)
	}
	return nil
}
