package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mkjhawar/NewAvanues-sub007/internal/config"
	"github.com/mkjhawar/NewAvanues-sub007/internal/consolidate"
	"github.com/mkjhawar/NewAvanues-sub007/internal/coordinator"
	"github.com/mkjhawar/NewAvanues-sub007/internal/events"
	"github.com/mkjhawar/NewAvanues-sub007/internal/scraper"
	"github.com/mkjhawar/NewAvanues-sub007/internal/store"
)

func main() {
	log.Println("scraperd - screen scraping engine")
	log.Println("=================================")

	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using environment variables")
	} else {
		log.Println("[config] Loaded .env file")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "engine.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if p := os.Getenv("DB_PATH"); p != "" {
		cfg.Database.Path = p
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()
	log.Printf("[main] Store: %s", st.Path())

	coord := coordinator.New(st.DB(), coordinator.Config{
		QueueSize:     cfg.Coordinator.QueueSize,
		MaxAttempts:   cfg.Coordinator.MaxAttempts,
		TTL:           cfg.Coordinator.TTL(),
		DrainInterval: cfg.Coordinator.DrainInterval(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One-time legacy merge. Failure degrades to split legacy data with the
	// unified store still fully usable; the next startup retries.
	engine := consolidate.New(st, coord, consolidate.Config{
		CommandStorePath: cfg.Legacy.CommandStorePath,
		ScrapeStorePath:  cfg.Legacy.ScrapeStorePath,
	})
	if report, err := engine.MigrateIfNeeded(ctx); err != nil {
		log.Printf("Warning: consolidation failed, legacy data still split: %v", err)
	} else if !report.AlreadyDone {
		log.Printf("[main] Consolidated legacy stores: %d apps, %d elements, %d commands, %d screens",
			report.Applications, report.Elements, report.Commands, report.Screens)
	}

	sc := scraper.New(st, coord, scraper.Config{
		MaxDepth:            cfg.Scraper.MaxDepth,
		TxAttempts:          cfg.Coordinator.TxAttempts,
		SimilarityThreshold: cfg.Scraper.SimilarityThreshold,
		TransitionWindow:    cfg.Scraper.TransitionWindow(),
	})

	pump := events.New(func(ctx context.Context, ev events.Event) {
		res := sc.Scrape(ctx, ev.ScreenEvent, ev.Provider)
		if !res.Success {
			log.Printf("[main] Scrape of %s failed: %s", ev.Package, res.Err)
		}
	}, events.Config{
		BufferSize: cfg.Events.BufferSize,
		Workers:    cfg.Events.Workers,
	})

	coord.Start()
	pump.Start(ctx)

	// Platform bindings attach their event sources to the pump; the engine
	// itself stays source-agnostic.
	log.Println("[main] Engine running, waiting for event sources. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[main] Shutting down...")
	cancel()
	pump.Stop()
	coord.Stop()

	if counts, err := st.TableCounts(); err == nil {
		log.Printf("[main] Final state: %d apps, %d elements, %d commands, %d screens",
			counts["applications"], counts["elements"], counts["commands"], counts["screens"])
	}
	log.Println("[main] Shutdown complete")
}
