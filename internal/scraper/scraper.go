// Package scraper drives the scrape-to-storage pipeline: one pass walks the
// live node tree, assigns content hashes, synthesizes commands and commits
// the lot through the write coordinator. Passes over the same screen are
// serialized via single-flight on the screen hash; different screens scrape
// in parallel.
package scraper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mkjhawar/NewAvanues-sub007/internal/coordinator"
	"github.com/mkjhawar/NewAvanues-sub007/internal/hash"
	"github.com/mkjhawar/NewAvanues-sub007/internal/logging"
	"github.com/mkjhawar/NewAvanues-sub007/internal/node"
	"github.com/mkjhawar/NewAvanues-sub007/internal/store"
	"github.com/mkjhawar/NewAvanues-sub007/internal/synth"
	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
	"github.com/mkjhawar/NewAvanues-sub007/internal/walker"
)

// Config tunes one scraper instance
type Config struct {
	MaxDepth            int
	TxAttempts          int
	SimilarityThreshold float64
	// TransitionWindow caps how old the previous screen may be for the
	// pair to still count as a transition
	TransitionWindow time.Duration
}

// Scraper converts screen events plus node trees into persisted records
type Scraper struct {
	store *store.Store
	coord *coordinator.Coordinator
	cfg   Config

	flight singleflight.Group

	mu         sync.Mutex
	lastScreen string
	lastSeenAt time.Time
}

// New builds a scraper over an open store and coordinator
func New(s *store.Store, c *coordinator.Coordinator, cfg Config) *Scraper {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = walker.DefaultMaxDepth
	}
	if cfg.TxAttempts <= 0 {
		cfg.TxAttempts = coordinator.DefaultTxAttempts
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.8
	}
	if cfg.TransitionWindow <= 0 {
		cfg.TransitionWindow = 30 * time.Second
	}
	return &Scraper{store: s, coord: c, cfg: cfg}
}

// scraped is one element captured during traversal, with its parent
// container resolved for grouping and relationship inference
type scraped struct {
	attrs  types.ElementAttrs
	hash   string
	result synth.Result
	parent int // index into the pass's element list, -1 for the root
}

// Scrape runs one pass for the event's screen. Concurrent calls for the
// same screen hash collapse into a single traversal; the duplicate caller
// gets the shared result.
func (s *Scraper) Scrape(ctx context.Context, ev types.ScreenEvent, provider node.Provider) types.ScrapeResult {
	if ev.Package == "" {
		return types.ScrapeResult{Success: false, Err: "event missing package"}
	}
	screenHash := hash.Screen(ev.Package, ev.Title, ev.Activity)

	v, _, _ := s.flight.Do(screenHash, func() (any, error) {
		return s.scrapeOnce(ctx, ev, screenHash, provider), nil
	})
	return v.(types.ScrapeResult)
}

func (s *Scraper) scrapeOnce(ctx context.Context, ev types.ScreenEvent, screenHash string, provider node.Provider) types.ScrapeResult {
	started := time.Now()

	root, err := provider.Root()
	if err != nil {
		logging.Warn("scraper", "no node tree for %s (%s): %v", ev.Package, ev.Title, err)
		return types.ScrapeResult{ScreenHash: screenHash, Success: false, Err: err.Error()}
	}

	elements, stats, err := s.collect(ctx, root)
	if err != nil {
		return types.ScrapeResult{ScreenHash: screenHash, Success: false, Err: err.Error()}
	}

	commandCount := 0
	txErr := s.coord.RunWithRetry(ctx, s.cfg.TxAttempts, func(tx *sql.Tx) error {
		commandCount = 0 // reset, the closure may run more than once
		return s.persistPass(tx, ev, screenHash, elements, &commandCount)
	})
	if txErr != nil {
		// degraded, not fatal: the host keeps running, this screen just
		// gains no new commands on this pass
		logging.Warn("scraper", "scrape of %s failed: %v", ev.Package, txErr)
		return types.ScrapeResult{ScreenHash: screenHash, Success: false, Err: txErr.Error(),
			TruncatedBranches: stats.TruncatedBranches}
	}

	s.noteTransition(ctx, screenHash, started)

	logging.Info("scraper", "scraped %s %q: %d elements, %d commands in %v",
		ev.Package, logging.Truncate(ev.Title, 40), len(elements), commandCount, time.Since(started).Round(time.Millisecond))
	return types.ScrapeResult{
		ScreenHash:        screenHash,
		ElementCount:      len(elements),
		CommandCount:      commandCount,
		TruncatedBranches: stats.TruncatedBranches,
		Success:           true,
	}
}

// collect walks the tree and snapshots attributes; no database work happens
// while node handles are held.
func (s *Scraper) collect(ctx context.Context, root node.Handle) ([]scraped, walker.Stats, error) {
	type frame struct {
		depth int
		index int // index into elements
	}
	var elements []scraped
	var stack []frame

	w := &walker.Walker{MaxDepth: s.cfg.MaxDepth, Order: walker.DepthFirst}
	siblingIndex := map[int]int{} // next sibling index per depth

	stats, err := w.Walk(ctx, root, func(n node.Handle, depth int) (walker.Decision, error) {
		for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
			stack = stack[:len(stack)-1]
		}
		parent := -1
		if len(stack) > 0 {
			parent = stack[len(stack)-1].index
		}

		attrs := types.ElementAttrs{
			Class:      n.ClassName(),
			ResourceID: n.ResourceID(),
			Text:       n.Text(),
			Label:      n.Label(),
			Bounds:     n.Bounds(),
			Flags:      n.Flags(),
			Depth:      depth,
			Index:      siblingIndex[depth],
		}
		siblingIndex[depth]++
		for d := depth + 1; ; d++ {
			if _, ok := siblingIndex[d]; !ok {
				break
			}
			delete(siblingIndex, d)
		}

		sc := scraped{
			attrs:  attrs,
			hash:   hash.Element(attrs),
			result: synth.Synthesize(attrs),
			parent: parent,
		}
		elements = append(elements, sc)
		stack = append(stack, frame{depth: depth, index: len(elements) - 1})
		return walker.Continue, nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("traversal aborted: %w", err)
	}
	return elements, stats, nil
}

// persistPass writes one scrape pass atomically: application, elements,
// state history, commands, screen, relationships.
func (s *Scraper) persistPass(tx *sql.Tx, ev types.ScreenEvent, screenHash string, elements []scraped, commandCount *int) error {
	app := &store.Application{PackageName: ev.Package}
	if err := store.UpsertApplication(tx, app); err != nil {
		return err
	}
	if err := store.BumpScrapeCount(tx, app.ID); err != nil {
		return err
	}

	roleCounts := map[types.Role]int{}
	var candidates []synth.Candidate

	for i := range elements {
		el := &elements[i]
		roleCounts[el.result.Role]++

		prev, err := store.GetElementTx(tx, el.hash)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if prev != nil {
			for _, ch := range store.StateChanges(prev, el.attrs) {
				ch.ElementHash = el.hash
				if err := store.AddStateChange(tx, &ch); err != nil {
					return err
				}
			}
		}

		row := &store.Element{
			Hash:        el.hash,
			AppID:       app.ID,
			Attrs:       el.attrs,
			Role:        el.result.Role,
			InputType:   el.result.InputType,
			FormGroupID: s.formGroup(elements, i),
		}
		if err := store.UpsertElement(tx, row); err != nil {
			return err
		}

		for _, cand := range el.result.Commands {
			cmd := types.Command{
				ElementHash: el.hash,
				Text:        cand.Text,
				Action:      cand.Action,
				Confidence:  cand.Confidence,
				Synonyms:    cand.Synonyms,
			}
			if err := store.UpsertCommand(tx, &cmd); err != nil {
				return err
			}
			*commandCount++
			candidates = append(candidates, cand)
		}
	}

	screen := &store.Screen{
		Hash:          screenHash,
		AppID:         app.ID,
		PackageName:   ev.Package,
		StableTitle:   ev.Title,
		Activity:      ev.Activity,
		ScreenType:    synth.InferScreenType(ev.Title, ev.Activity, roleCounts),
		PrimaryAction: synth.PrimaryAction(candidates),
		ElementCount:  len(elements),
	}
	if err := store.UpsertScreen(tx, screen); err != nil {
		return err
	}

	return s.relate(tx, elements)
}

// formGroup assigns editable elements the hash of their nearest container
// ancestor, so inputs on one form share a group id.
func (s *Scraper) formGroup(elements []scraped, i int) string {
	if !elements[i].attrs.Flags.Editable {
		return ""
	}
	for p := elements[i].parent; p >= 0; p = elements[p].parent {
		if elements[p].result.Role == types.RoleContainer {
			return elements[p].hash
		}
	}
	return ""
}

// relate derives sibling relationships: a label directly before an input
// labels it, and runs of checkables under one parent form a group.
func (s *Scraper) relate(tx *sql.Tx, elements []scraped) error {
	byParent := map[int][]int{}
	for i := range elements {
		byParent[elements[i].parent] = append(byParent[elements[i].parent], i)
	}

	for _, siblings := range byParent {
		var prevLabel = -1
		var firstCheckable = -1
		for _, idx := range siblings {
			el := &elements[idx]
			switch {
			case el.result.Role == types.RoleLabel:
				prevLabel = idx
				continue
			case el.result.Role == types.RoleInput && prevLabel >= 0:
				pair := []store.Relationship{
					{FromElement: elements[prevLabel].hash, ToElement: el.hash, Kind: types.RelationLabelFor, Confidence: 0.8},
					{FromElement: el.hash, ToElement: elements[prevLabel].hash, Kind: types.RelationInputFor, Confidence: 0.8},
				}
				for i := range pair {
					if err := store.AddRelationship(tx, &pair[i]); err != nil {
						return err
					}
				}
			case el.attrs.Flags.Checkable:
				if firstCheckable < 0 {
					firstCheckable = idx
				} else {
					r := store.Relationship{
						FromElement: elements[firstCheckable].hash,
						ToElement:   el.hash,
						Kind:        types.RelationGroupMember,
						Confidence:  0.7,
					}
					if err := store.AddRelationship(tx, &r); err != nil {
						return err
					}
				}
			}
			prevLabel = -1
		}
	}
	return nil
}

// noteTransition records the directed edge from the previously scraped
// screen when the gap is short enough to be a navigation.
func (s *Scraper) noteTransition(ctx context.Context, screenHash string, now time.Time) {
	s.mu.Lock()
	prev, prevAt := s.lastScreen, s.lastSeenAt
	s.lastScreen, s.lastSeenAt = screenHash, now
	s.mu.Unlock()

	if prev == "" || prev == screenHash {
		return
	}
	elapsed := now.Sub(prevAt)
	if elapsed > s.cfg.TransitionWindow {
		return
	}

	err := s.coord.RunWithRetry(ctx, s.cfg.TxAttempts, func(tx *sql.Tx) error {
		return store.RecordTransition(tx, prev, screenHash, float64(elapsed.Milliseconds()))
	})
	if err != nil {
		logging.Debug("scraper", "transition %s -> %s not recorded: %v", prev, screenHash, err)
	}
}

// RecordInteraction persists a user action on an element. When the element
// row is not visible yet (dependent event raced ahead of its scrape), the
// write is deferred to the coordinator queue instead of being dropped.
func (s *Scraper) RecordInteraction(ctx context.Context, in *store.Interaction) error {
	err := s.coord.RunWithRetry(ctx, s.cfg.TxAttempts, func(tx *sql.Tx) error {
		return store.AddInteraction(tx, in)
	})
	if errors.Is(err, store.ErrParentMissing) {
		s.coord.Defer(&coordinator.PendingWrite{Kind: coordinator.KindInteraction, Interaction: in})
		return nil
	}
	return err
}
