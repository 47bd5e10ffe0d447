package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rentwatch/config"
	"rentwatch/httputil"
	"rentwatch/logging"
	"rentwatch/notify"
	"rentwatch/scheduler"
	"rentwatch/scraper"
	"rentwatch/services"
	"rentwatch/sheets"
	"rentwatch/storage"
)

var (
	runOnce    = flag.Bool("run-once", false, "Run a single cycle and exit")
	testMode   = flag.Bool("test-mode", false, "Print notifications to stdout instead of sending")
	testConfig = flag.Bool("test-config", false, "Validate the sheet and exit")
	sheetsURL  = flag.String("sheets-url", "", "Override GOOGLE_SHEETS_URL")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting rentwatch...")
	if *sheetsURL != "" {
		cfg.Sheets.URL = *sheetsURL
	}
	if cfg.Sheets.URL == "" {
		log.Fatal("No sheet URL configured (set GOOGLE_SHEETS_URL or pass -sheets-url)")
	}

	log.Printf("Loaded %d site configs", len(cfg.Sites))
	for id, site := range cfg.Sites {
		log.Printf("  - %s (%s)", site.Name, id)
	}

	clients := httputil.NewClients(cfg.Scraper.PageTimeout)
	loader := sheets.NewLoader(clients)

	// The root context dies on SIGINT/SIGTERM so both the run-once path
	// and the daemon stop cleanly between configurations.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *testConfig {
		if err := loader.Validate(ctx, cfg.Sheets.URL); err != nil {
			log.Fatalf("Sheet validation failed: %v", err)
		}
		log.Println("Sheet OK")
		if cfg.Telegram.BotToken != "" {
			if err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, clients.API).TestConnection(ctx); err != nil {
				log.Fatalf("Telegram connection check failed: %v", err)
			}
			log.Println("Telegram OK")
		}
		return
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open seen store: %v", err)
	}
	defer store.Close()

	var notifier notify.Notifier
	if *testMode {
		log.Println("Test mode: notifications go to stdout")
		notifier = notify.NewConsoleNotifier()
	} else {
		if cfg.Telegram.BotToken == "" {
			log.Fatal("TELEGRAM_BOT_TOKEN not set (use -test-mode to run without it)")
		}
		tg := notify.NewTelegramNotifier(cfg.Telegram.BotToken, clients.API)
		if err := tg.TestConnection(ctx); err != nil {
			log.Fatalf("Telegram connection check failed: %v", err)
		}
		notifier = tg
	}

	listingService := services.NewListingService(store, notifier)
	orchestrator := scraper.NewOrchestrator(cfg, store, listingService, clients)
	sched := scheduler.New(cfg, orchestrator, store, loader)

	if *runOnce {
		run, err := sched.TriggerNow(ctx)
		if err != nil {
			log.Fatalf("Cycle failed: %v", err)
		}
		log.Printf("Cycle %s complete: %d notified, %d duplicates", run.ID, run.Notified, run.Duplicates)
		return
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
		log.Println("Received shutdown signal, shutting down...")
	case err := <-sched.Fatal():
		log.Printf("Fatal: %v", err)
		cancel()
		sched.Stop()
		os.Exit(1)
	}

	cancel()
	sched.Stop()
	log.Println("Goodbye!")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.SeenStore, error) {
	if cfg.DBURL != "" {
		log.Println("Using Postgres seen store")
		return storage.NewPostgresStore(ctx, cfg.DBURL)
	}
	log.Printf("Using SQLite seen store: %s", cfg.DBPath)
	return storage.NewSQLiteStore(cfg.DBPath)
}
