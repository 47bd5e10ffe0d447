package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"rentwatch/models"
)

// SQLiteStore is the default SeenStore backing, a single durable file.
type SQLiteStore struct {
	db *sql.DB
}

var _ SeenStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("seen store: open: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seen store: migrate: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS seen_listings (
		source_url TEXT PRIMARY KEY,
		search_config_id TEXT NOT NULL,
		price_per_occupant REAL NOT NULL,
		first_seen_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cycle_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		configs_run INTEGER DEFAULT 0,
		listings_found INTEGER DEFAULT 0,
		skipped_extract INTEGER DEFAULT 0,
		filtered_price INTEGER DEFAULT 0,
		duplicates INTEGER DEFAULT 0,
		notified INTEGER DEFAULT 0,
		notify_failed INTEGER DEFAULT 0,
		scrape_failures INTEGER DEFAULT 0,
		purged_rows INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_seen_config ON seen_listings(search_config_id);
	CREATE INDEX IF NOT EXISTS idx_seen_first_seen ON seen_listings(first_seen_at);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON cycle_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) HasSeen(ctx context.Context, sourceURL string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_listings WHERE source_url = ?`, sourceURL).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seen store: has_seen: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) RecordSeen(ctx context.Context, rec models.ListingRecord) error {
	firstSeen := rec.DiscoveredAt
	if firstSeen.IsZero() {
		firstSeen = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seen_listings (source_url, search_config_id, price_per_occupant, first_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_url) DO NOTHING`,
		rec.SourceURL, rec.SearchConfigID, rec.PricePerOccupant, firstSeen)
	if err != nil {
		return fmt.Errorf("seen store: record_seen: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM seen_listings WHERE first_seen_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("seen store: purge: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) RecordCycle(ctx context.Context, run *models.CycleRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycle_runs (id, started_at, finished_at, status, configs_run,
			listings_found, skipped_extract, filtered_price, duplicates, notified,
			notify_failed, scrape_failures, purged_rows)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			configs_run = excluded.configs_run,
			listings_found = excluded.listings_found,
			skipped_extract = excluded.skipped_extract,
			filtered_price = excluded.filtered_price,
			duplicates = excluded.duplicates,
			notified = excluded.notified,
			notify_failed = excluded.notify_failed,
			scrape_failures = excluded.scrape_failures,
			purged_rows = excluded.purged_rows`,
		run.ID, run.StartedAt, run.FinishedAt, run.Status, run.ConfigsRun,
		run.ListingsFound, run.SkippedExtract, run.FilteredPrice, run.Duplicates,
		run.Notified, run.NotifyFailed, run.ScrapeFailures, run.PurgedRows)
	if err != nil {
		return fmt.Errorf("seen store: record_cycle: %w", err)
	}
	return nil
}
