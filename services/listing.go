package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"rentwatch/models"
	"rentwatch/notify"
	"rentwatch/pricing"
	"rentwatch/storage"
)

// ListingService runs one extracted record through the back half of the
// pipeline: normalize, filter, dedup-check, notify, persist.
type ListingService struct {
	store    storage.SeenStore
	notifier notify.Notifier
}

func NewListingService(store storage.SeenStore, notifier notify.Notifier) *ListingService {
	return &ListingService{store: store, notifier: notifier}
}

// Describe pushes the search description to the notifier so messages can
// name the search they matched.
func (s *ListingService) Describe(cfg models.SearchConfig) {
	if d, ok := s.notifier.(notify.Describer); ok {
		d.SetDescription(cfg.ID, cfg.Description)
	}
}

// Summarize sends the per-search recap to every recipient once a cycle has
// delivered newListings fresh listings for cfg. Nothing is sent for a dry
// search. Delivery failures are logged, never fatal.
func (s *ListingService) Summarize(ctx context.Context, cfg models.SearchConfig, newListings int) {
	if newListings == 0 {
		return
	}
	sum, ok := s.notifier.(notify.Summarizer)
	if !ok {
		return
	}
	for _, chatID := range cfg.ChatIDs {
		if err := sum.NotifySummary(ctx, cfg.ID, chatID, newListings); err != nil {
			log.Printf("Summary failed for %s (chat %s): %v", cfg.ID, chatID, err)
		}
	}
}

// ProcessResult is the outcome of processing one listing. Exactly one of
// the flags is set.
type ProcessResult struct {
	SkippedExtract bool // price could not be normalized
	Filtered       bool // over budget
	Duplicate      bool // already notified on in a previous run
	NotifyFailed   bool // delivery unconfirmed; listing left unmarked
	Notified       bool
}

// Process applies filtering and dedup to rec and, for new qualifying
// listings, delivers to every recipient before marking the URL seen. The
// mark-seen-after-delivery ordering is load-bearing: a failed delivery
// leaves no row, so the next cycle retries (at-least-once delivery).
// Returned errors are store failures and are fatal for the whole run.
func (s *ListingService) Process(ctx context.Context, rec models.ListingRecord, cfg models.SearchConfig) (ProcessResult, error) {
	var result ProcessResult

	if rec.PricePerOccupant == 0 {
		perOccupant, err := pricing.PerOccupant(rec.RawPrice, rec.Bedrooms)
		if err != nil {
			if errors.Is(err, pricing.ErrNoPrice) {
				log.Printf("Dropping %s: %v", rec.SourceURL, err)
				result.SkippedExtract = true
				return result, nil
			}
			return result, fmt.Errorf("normalize %s: %w", rec.SourceURL, err)
		}
		rec.PricePerOccupant = perOccupant
	}

	// Inclusive boundary: a listing at exactly the budget qualifies.
	if rec.PricePerOccupant > cfg.MaxPricePerOccupant {
		log.Printf("Filtered %s: £%.2f > £%.2f per occupant", rec.SourceURL, rec.PricePerOccupant, cfg.MaxPricePerOccupant)
		result.Filtered = true
		return result, nil
	}

	seen, err := s.store.HasSeen(ctx, rec.SourceURL)
	if err != nil {
		return result, err
	}
	if seen {
		result.Duplicate = true
		return result, nil
	}

	for _, chatID := range cfg.ChatIDs {
		if err := s.notifier.Notify(ctx, rec, chatID); err != nil {
			log.Printf("Notify failed for %s (chat %s): %v", rec.SourceURL, chatID, err)
			result.NotifyFailed = true
			return result, nil
		}
	}

	if err := s.store.RecordSeen(ctx, rec); err != nil {
		return result, err
	}

	result.Notified = true
	log.Printf("Notified %d recipient(s): %s (£%.2f per occupant)", len(cfg.ChatIDs), rec.SourceURL, rec.PricePerOccupant)
	return result, nil
}
