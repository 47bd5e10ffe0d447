package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// CycleRun records one full pass over all active search configurations.
type CycleRun struct {
	ID             string     `json:"id" db:"id"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at" db:"finished_at"`
	Status         RunStatus  `json:"status" db:"status"`
	ConfigsRun     int        `json:"configs_run" db:"configs_run"`
	ListingsFound  int        `json:"listings_found" db:"listings_found"`
	SkippedExtract int        `json:"skipped_extract" db:"skipped_extract"`
	FilteredPrice  int        `json:"filtered_price" db:"filtered_price"`
	Duplicates     int        `json:"duplicates" db:"duplicates"`
	Notified       int        `json:"notified" db:"notified"`
	NotifyFailed   int        `json:"notify_failed" db:"notify_failed"`
	ScrapeFailures int        `json:"scrape_failures" db:"scrape_failures"`
	PurgedRows     int64      `json:"purged_rows" db:"purged_rows"`
}
