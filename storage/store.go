package storage

import (
	"context"
	"time"

	"rentwatch/models"
)

// SeenStore is the durable record of listings already notified on, keyed
// by canonical source URL. It is the only source of truth for duplicate
// suppression; nothing in-memory outlives a cycle.
type SeenStore interface {
	HasSeen(ctx context.Context, sourceURL string) (bool, error)
	// RecordSeen inserts the listing. Inserting an already-present URL is
	// a no-op, not an error.
	RecordSeen(ctx context.Context, rec models.ListingRecord) error
	// PurgeOlderThan removes rows first seen before now-age and reports
	// how many were deleted.
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
	RecordCycle(ctx context.Context, run *models.CycleRun) error
	Close() error
}
