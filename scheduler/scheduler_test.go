package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rentwatch/config"
	"rentwatch/httputil"
	"rentwatch/models"
	"rentwatch/notify"
	"rentwatch/scraper"
	"rentwatch/services"
	"rentwatch/sheets"
	"rentwatch/storage"
)

const testCSV = `url,site,telegram_chat_ids,max_price_pp,active,description
https://example.test/search,openrent,111,1000,TRUE,Test search
`

// gateHandler blocks inside Scrape until released, and counts invocations.
type gateHandler struct {
	mu      sync.Mutex
	started int
	release chan struct{}
	records []models.ListingRecord
}

func (h *gateHandler) Site() string { return models.SiteOpenRent }

func (h *gateHandler) Scrape(_ context.Context, _ models.SearchConfig, _ scraper.Limits, emit scraper.EmitFunc) (scraper.Stats, error) {
	h.mu.Lock()
	h.started++
	h.mu.Unlock()
	if h.release != nil {
		<-h.release
	}

	var stats scraper.Stats
	for _, rec := range h.records {
		stats.Extracted++
		if err := emit(rec); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (h *gateHandler) runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

func schedulerFixture(t *testing.T, handler scraper.Handler) (*Scheduler, *storage.SQLiteStore) {
	t.Helper()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "sheet.csv")
	if err := os.WriteFile(csvPath, []byte(testCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "seen.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Sheets:    config.SheetsConfig{URL: csvPath},
		Scheduler: config.SchedulerConfig{Interval: time.Hour},
		Scraper:   config.ScraperConfig{MaxListings: 15, DiscoveryCap: 60, PageTimeout: 5 * time.Second},
		Retention: 30 * 24 * time.Hour,
		Sites:     map[string]*config.SiteConfig{},
	}

	clients := httputil.NewClients(5 * time.Second)
	listings := services.NewListingService(store, notify.NewConsoleNotifier())
	orchestrator := scraper.NewOrchestrator(cfg, store, listings, clients)
	orchestrator.SetHandler(models.SiteOpenRent, handler)

	return New(cfg, orchestrator, store, sheets.NewLoader(clients)), store
}

func TestTryRun_OverlappingTickSkipped(t *testing.T) {
	handler := &gateHandler{release: make(chan struct{})}
	sched, _ := schedulerFixture(t, handler)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.tryRun(ctx)
	}()

	// Wait for the first cycle to be inside Scrape, then tick again.
	deadline := time.After(5 * time.Second)
	for handler.runs() == 0 {
		select {
		case <-deadline:
			t.Fatal("first cycle never started")
		case <-time.After(10 * time.Millisecond):
		}
	}

	sched.tryRun(ctx) // should skip, first cycle still blocked

	close(handler.release)
	wg.Wait()

	if got := handler.runs(); got != 1 {
		t.Fatalf("overlapping tick must be skipped: handler ran %d times", got)
	}
}

func TestTryRun_AfterStopIsNoOp(t *testing.T) {
	handler := &gateHandler{}
	sched, _ := schedulerFixture(t, handler)

	sched.Stop()
	sched.tryRun(context.Background())

	if got := handler.runs(); got != 0 {
		t.Fatalf("cycle must not start after Stop: handler ran %d times", got)
	}
}

func TestRunCycle_PurgesExpiredRows(t *testing.T) {
	handler := &gateHandler{
		records: []models.ListingRecord{{
			SourceURL:        "https://example.test/listing/1",
			Title:            "2 bed flat",
			Bedrooms:         2,
			RawPrice:         "£1,800 pcm",
			PricePerOccupant: 900,
			DiscoveredAt:     time.Now().UTC(),
		}},
	}
	sched, store := schedulerFixture(t, handler)
	ctx := context.Background()

	expired := models.ListingRecord{
		SourceURL:        "https://example.test/listing/ancient",
		Bedrooms:         1,
		RawPrice:         "£900 pcm",
		PricePerOccupant: 900,
		DiscoveredAt:     time.Now().UTC().Add(-40 * 24 * time.Hour),
	}
	if err := store.RecordSeen(ctx, expired); err != nil {
		t.Fatalf("seed expired row: %v", err)
	}

	if err := sched.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if seen, _ := store.HasSeen(ctx, expired.SourceURL); seen {
		t.Fatal("expired row survived the cycle purge")
	}
	if seen, _ := store.HasSeen(ctx, "https://example.test/listing/1"); !seen {
		t.Fatal("notified listing not recorded")
	}
}

func TestTriggerNow(t *testing.T) {
	handler := &gateHandler{
		records: []models.ListingRecord{{
			SourceURL:        "https://example.test/listing/2",
			Title:            "1 bed flat",
			Bedrooms:         1,
			RawPrice:         "£950 pcm",
			PricePerOccupant: 950,
			DiscoveredAt:     time.Now().UTC(),
		}},
	}
	sched, _ := schedulerFixture(t, handler)

	run, err := sched.TriggerNow(context.Background())
	if err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if run.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
	if run.Notified != 1 {
		t.Fatalf("expected 1 notification, got %d", run.Notified)
	}
}
