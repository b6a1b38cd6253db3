package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/mkjhawar/NewAvanues-sub007/internal/consolidate"
	"github.com/mkjhawar/NewAvanues-sub007/internal/coordinator"
	"github.com/mkjhawar/NewAvanues-sub007/internal/store"
)

func main() {
	dbPath := flag.String("db", "state/engine.db", "Path to the unified store")
	commandStore := flag.String("commands", "state/legacy/voicecommands.db", "Path to the legacy voice command store")
	scrapeStore := flag.String("scrape", "state/legacy/appscrape.db", "Path to the legacy app scrape store")
	force := flag.Bool("force", false, "Clear the completion flag and re-run the merge")
	purgeLegacy := flag.Bool("purge-legacy", false, "Print the legacy files that could be removed after a verified merge (never deletes)")
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	log.Printf("Unified store: %s", *dbPath)

	if *force {
		if err := st.SetMeta(consolidate.CompletionKey, ""); err != nil {
			log.Fatalf("Failed to clear completion flag: %v", err)
		}
		log.Println("Cleared completion flag, re-running merge")
	}

	coord := coordinator.New(st.DB(), coordinator.Config{})
	engine := consolidate.New(st, coord, consolidate.Config{
		CommandStorePath: *commandStore,
		ScrapeStorePath:  *scrapeStore,
	})

	report, err := engine.MigrateIfNeeded(context.Background())
	if err != nil {
		log.Fatalf("Consolidation failed: %v", err)
	}

	if report.AlreadyDone {
		log.Println("Already consolidated - nothing to do (use -force to re-run)")
	} else {
		log.Println("Consolidation complete:")
		log.Printf("  Applications: %d", report.Applications)
		log.Printf("  Elements:     %d (%d remapped to the current hash epoch)", report.Elements, report.Remapped)
		log.Printf("  Commands:     %d", report.Commands)
		log.Printf("  Screens:      %d", report.Screens)
		if report.Skipped > 0 {
			log.Printf("  Skipped:      %d legacy rows (bad digest or missing element)", report.Skipped)
		}
	}

	counts, err := st.TableCounts()
	if err != nil {
		log.Fatalf("Failed to read table counts: %v", err)
	}
	log.Println("Unified store state:")
	for _, t := range []string{"applications", "elements", "commands", "command_aliases", "screens", "screen_transitions"} {
		log.Printf("  %-20s %d", t, counts[t])
	}

	if *purgeLegacy {
		log.Println("Legacy files eligible for manual removal after verifying the merge:")
		for _, p := range []string{*commandStore, *scrapeStore} {
			if _, err := os.Stat(p); err == nil {
				log.Printf("  %s", p)
			}
		}
		log.Println("This tool never deletes them; remove by hand once verified.")
	}
}
