package scraper

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"rentwatch/config"
	"rentwatch/httputil"
	"rentwatch/models"
	"rentwatch/services"
	"rentwatch/storage"
)

// Orchestrator drives one cycle: every active search configuration end to
// end, scrape through notify. Per-configuration failures are contained;
// only store failures abort the cycle.
type Orchestrator struct {
	cfg      *config.Config
	store    storage.SeenStore
	listings *services.ListingService
	handlers map[string]Handler
}

func NewOrchestrator(cfg *config.Config, store storage.SeenStore, listings *services.ListingService, clients *httputil.Clients) *Orchestrator {
	handlers := make(map[string]Handler)
	for id, siteCfg := range cfg.Sites {
		handlers[id] = NewHandler(siteCfg, clients)
	}

	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		listings: listings,
		handlers: handlers,
	}
}

// SetHandler replaces the handler for a site. Tests install fakes here.
func (o *Orchestrator) SetHandler(site string, h Handler) {
	o.handlers[site] = h
}

// RunAll processes the given configurations sequentially, checking for
// cancellation between configurations. The returned error is non-nil only
// for store failures, which make the whole run unsafe to continue.
func (o *Orchestrator) RunAll(ctx context.Context, configs []models.SearchConfig) (*models.CycleRun, error) {
	run := &models.CycleRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    models.RunStatusRunning,
	}
	if err := o.store.RecordCycle(ctx, run); err != nil {
		return run, err
	}

	for _, sc := range configs {
		select {
		case <-ctx.Done():
			log.Printf("Cycle %s cancelled after %d config(s)", run.ID, run.ConfigsRun)
			return o.finish(run, models.RunStatusCancelled)
		default:
		}

		if err := o.runConfig(ctx, sc, run); err != nil {
			run.FinishedAt = ptrTime(time.Now().UTC())
			run.Status = models.RunStatusFailed
			// Best effort: the store just failed, recording may too.
			o.store.RecordCycle(context.WithoutCancel(ctx), run)
			return run, err
		}
		run.ConfigsRun++
	}

	return o.finish(run, models.RunStatusCompleted)
}

func (o *Orchestrator) finish(run *models.CycleRun, status models.RunStatus) (*models.CycleRun, error) {
	run.FinishedAt = ptrTime(time.Now().UTC())
	run.Status = status
	if err := o.store.RecordCycle(context.Background(), run); err != nil {
		return run, err
	}

	log.Printf("Cycle %s: %d configs, %d found, %d skipped (no extract), %d over budget, %d duplicates, %d notified, %d notify failures, %d scrape failures",
		run.ID, run.ConfigsRun, run.ListingsFound, run.SkippedExtract, run.FilteredPrice,
		run.Duplicates, run.Notified, run.NotifyFailed, run.ScrapeFailures)
	return run, nil
}

// runConfig isolates one configuration. Scrape failures are logged and
// counted; only errors out of the listing service (store I/O) propagate.
func (o *Orchestrator) runConfig(ctx context.Context, sc models.SearchConfig, run *models.CycleRun) error {
	handler, ok := o.handlers[sc.Site]
	if !ok {
		log.Printf("No handler for site %q (config %s), skipping", sc.Site, sc.ID)
		run.ScrapeFailures++
		return nil
	}

	log.Printf("Processing %s (%s)", sc.Description, sc.Site)
	o.listings.Describe(sc)

	var (
		fatal    error
		notified int
	)
	stats, err := handler.Scrape(ctx, sc, LimitsFromConfig(o.cfg.Scraper), func(rec models.ListingRecord) error {
		result, perr := o.listings.Process(ctx, rec, sc)
		if perr != nil {
			fatal = perr
			return perr
		}
		switch {
		case result.SkippedExtract:
			run.SkippedExtract++
		case result.Filtered:
			run.FilteredPrice++
		case result.Duplicate:
			run.Duplicates++
		case result.NotifyFailed:
			run.NotifyFailed++
		case result.Notified:
			run.Notified++
			notified++
		}
		return nil
	})

	run.ListingsFound += stats.Extracted
	run.SkippedExtract += stats.SkippedExtract

	if fatal != nil {
		return fatal
	}
	if err != nil && ctx.Err() == nil {
		log.Printf("Scrape failed for %s: %v", sc.Description, err)
		run.ScrapeFailures++
		return nil
	}

	o.listings.Summarize(ctx, sc, notified)

	log.Printf("Finished %s: %d discovered, %d extracted, %d skipped",
		sc.Description, stats.URLsDiscovered, stats.Extracted, stats.SkippedExtract)
	return nil
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
