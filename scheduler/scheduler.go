package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"rentwatch/config"
	"rentwatch/models"
	"rentwatch/scraper"
	"rentwatch/sheets"
	"rentwatch/storage"
)

// Scheduler runs cycles on a fixed interval (or cron expression), one at a
// time. A tick that arrives while a cycle is in flight is skipped, not
// queued. Store failures are surfaced on Fatal so the process can exit.
type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	store        storage.SeenStore
	loader       *sheets.Loader

	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
	fatal  chan error

	mu      sync.Mutex
	running bool
	stopped bool
	wg      sync.WaitGroup
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator, store storage.SeenStore, loader *sheets.Loader) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		store:        store,
		loader:       loader,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
		fatal:        make(chan error, 1),
	}
}

// Fatal delivers the first unrecoverable error from a scheduled cycle.
func (s *Scheduler) Fatal() <-chan error {
	return s.fatal
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.tryRun(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.tryRun(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// First cycle runs immediately rather than waiting a full interval.
	go s.tryRun(ctx)

	return nil
}

// Stop halts scheduling and waits for any in-flight cycle to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	close(s.stopCh)
	s.wg.Wait()
}

// tryRun starts a cycle unless one is already in flight or the scheduler
// has stopped. The in-flight flag and the WaitGroup increment happen under
// one lock so Stop cannot slip between them.
func (s *Scheduler) tryRun(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.running {
		s.mu.Unlock()
		log.Println("Previous cycle still running, skipping tick")
		return
	}
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.RunCycle(ctx); err != nil {
		select {
		case s.fatal <- err:
		default:
		}
	}
}

// RunCycle reloads search configurations, runs every active one, and purges
// expired dedup rows. Returns a non-nil error only when the store failed.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	configs, err := s.loader.Load(ctx, s.cfg.Sheets.URL)
	if err != nil {
		if errors.Is(err, sheets.ErrNoConfigs) {
			log.Println("No active search configs, skipping cycle")
			return nil
		}
		log.Printf("Config reload failed, skipping cycle: %v", err)
		return nil
	}

	run, err := s.orchestrator.RunAll(ctx, configs)
	if err != nil {
		return fmt.Errorf("cycle %s: %w", run.ID, err)
	}

	purged, err := s.store.PurgeOlderThan(ctx, s.cfg.Retention)
	if err != nil {
		return fmt.Errorf("cycle %s: purge: %w", run.ID, err)
	}
	if purged > 0 {
		log.Printf("Purged %d seen rows older than %s", purged, s.cfg.Retention)
		run.PurgedRows = purged
		if err := s.store.RecordCycle(ctx, run); err != nil {
			return fmt.Errorf("cycle %s: %w", run.ID, err)
		}
	}

	return nil
}

// TriggerNow runs a single cycle synchronously. Used by -run-once.
func (s *Scheduler) TriggerNow(ctx context.Context) (*models.CycleRun, error) {
	configs, err := s.loader.Load(ctx, s.cfg.Sheets.URL)
	if err != nil {
		return nil, err
	}

	run, err := s.orchestrator.RunAll(ctx, configs)
	if err != nil {
		return run, err
	}
	if ctx.Err() != nil {
		// Aborted mid-run, the cycle row already says cancelled.
		return run, nil
	}

	purged, err := s.store.PurgeOlderThan(ctx, s.cfg.Retention)
	if err != nil {
		return run, err
	}
	run.PurgedRows = purged
	return run, s.store.RecordCycle(ctx, run)
}
