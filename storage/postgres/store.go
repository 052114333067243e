// Package postgres stores pool events in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/defistate/clamm-go/protocols/clamm/events"
	"github.com/defistate/clamm-go/storage"
)

var ErrMissingDSN = errors.New("postgres: dsn is required")

const schema = `
CREATE TABLE IF NOT EXISTS pool_events (
	pool            TEXT        NOT NULL,
	seq             BIGINT      NOT NULL,
	kind            TEXT        NOT NULL,
	block_timestamp BIGINT      NOT NULL,
	payload         JSONB       NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool, seq)
);
CREATE INDEX IF NOT EXISTS pool_events_kind_idx ON pool_events (pool, kind, block_timestamp);
`

const insertEvent = `
	INSERT INTO pool_events (pool, seq, kind, block_timestamp, payload)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (pool, seq) DO NOTHING
`

// Store provides Postgres persistence for events. Writing the same event twice is a no-op.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, ErrMissingDSN
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the events table and its index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// WriteEvents inserts a batch of events in one round trip.
func (s *Store) WriteEvents(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	records, err := storage.Records(evs)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insertEvent, r.Pool.Hex(), int64(r.Seq), string(r.Kind), int64(r.BlockTimestamp), []byte(r.Payload))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert event %s/%d: %w", r.Pool.Hex(), r.Seq, err)
		}
	}
	return nil
}

// Count returns the number of stored events for a pool.
func (s *Store) Count(ctx context.Context, pool string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM pool_events WHERE pool = $1`, pool).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
