package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"rentwatch/models"
)

// PostgresStore is an alternative SeenStore backing for deployments that
// already run Postgres. Same contract as SQLiteStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ SeenStore = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("seen store: parse config: %w", err)
	}

	config.MaxConns = 5
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("seen store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("seen store: ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("seen store: migrate: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS seen_listings (
		source_url TEXT PRIMARY KEY,
		search_config_id TEXT NOT NULL,
		price_per_occupant DOUBLE PRECISION NOT NULL,
		first_seen_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cycle_runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		status TEXT,
		configs_run INT DEFAULT 0,
		listings_found INT DEFAULT 0,
		skipped_extract INT DEFAULT 0,
		filtered_price INT DEFAULT 0,
		duplicates INT DEFAULT 0,
		notified INT DEFAULT 0,
		notify_failed INT DEFAULT 0,
		scrape_failures INT DEFAULT 0,
		purged_rows BIGINT DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_seen_config ON seen_listings(search_config_id);
	CREATE INDEX IF NOT EXISTS idx_seen_first_seen ON seen_listings(first_seen_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) HasSeen(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM seen_listings WHERE source_url = $1)`, sourceURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("seen store: has_seen: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) RecordSeen(ctx context.Context, rec models.ListingRecord) error {
	firstSeen := rec.DiscoveredAt
	if firstSeen.IsZero() {
		firstSeen = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO seen_listings (source_url, search_config_id, price_per_occupant, first_seen_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_url) DO NOTHING`,
		rec.SourceURL, rec.SearchConfigID, rec.PricePerOccupant, firstSeen)
	if err != nil {
		return fmt.Errorf("seen store: record_seen: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM seen_listings WHERE first_seen_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("seen store: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) RecordCycle(ctx context.Context, run *models.CycleRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cycle_runs (id, started_at, finished_at, status, configs_run,
			listings_found, skipped_extract, filtered_price, duplicates, notified,
			notify_failed, scrape_failures, purged_rows)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			configs_run = EXCLUDED.configs_run,
			listings_found = EXCLUDED.listings_found,
			skipped_extract = EXCLUDED.skipped_extract,
			filtered_price = EXCLUDED.filtered_price,
			duplicates = EXCLUDED.duplicates,
			notified = EXCLUDED.notified,
			notify_failed = EXCLUDED.notify_failed,
			scrape_failures = EXCLUDED.scrape_failures,
			purged_rows = EXCLUDED.purged_rows`,
		run.ID, run.StartedAt, run.FinishedAt, run.Status, run.ConfigsRun,
		run.ListingsFound, run.SkippedExtract, run.FilteredPrice, run.Duplicates,
		run.Notified, run.NotifyFailed, run.ScrapeFailures, run.PurgedRows)
	if err != nil {
		return fmt.Errorf("seen store: record_cycle: %w", err)
	}
	return nil
}
