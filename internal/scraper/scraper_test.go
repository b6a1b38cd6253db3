package scraper

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mkjhawar/NewAvanues-sub007/internal/coordinator"
	"github.com/mkjhawar/NewAvanues-sub007/internal/hash"
	"github.com/mkjhawar/NewAvanues-sub007/internal/node"
	"github.com/mkjhawar/NewAvanues-sub007/internal/store"
	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

func newTestScraper(t *testing.T) (*store.Store, *coordinator.Coordinator, *Scraper) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	c := coordinator.New(s.DB(), coordinator.Config{})
	return s, c, New(s, c, Config{})
}

func loginScreen() *node.FakeNode {
	email := node.Leaf("android.widget.EditText", "com.example.mail:id/email", "")
	email.F = types.Flags{Editable: true, Focusable: true, Enabled: true}
	password := node.Leaf("android.widget.EditText", "com.example.mail:id/password", "")
	password.F = types.Flags{Editable: true, Focusable: true, Enabled: true}
	signIn := node.Leaf("android.widget.Button", "com.example.mail:id/sign_in", "Sign In")
	signIn.F = types.Flags{Clickable: true, Focusable: true, Enabled: true}
	remember := node.Leaf("android.widget.CheckBox", "com.example.mail:id/remember", "Remember me")
	remember.F = types.Flags{Checkable: true, Clickable: true, Enabled: true}

	emailLabel := node.Leaf("android.widget.TextView", "com.example.mail:id/email_caption", "Email address")
	emailLabel.F = types.Flags{Enabled: true}

	form := node.Branch("android.widget.LinearLayout", "com.example.mail:id/form",
		emailLabel, email, password, remember, signIn)
	return node.Branch("android.widget.FrameLayout", "com.example.mail:id/root", form)
}

func loginEvent() types.ScreenEvent {
	return types.ScreenEvent{
		Package:   "com.example.mail",
		WindowID:  "window-42",
		Title:     "Sign in",
		Activity:  "com.example.mail.LoginActivity",
		Kind:      types.EventScreenChanged,
		Timestamp: time.Now(),
	}
}

func provider(tree *node.FakeTree) node.Provider {
	return node.ProviderFunc(func() (node.Handle, error) { return tree.Root, nil })
}

func TestScrapePersistsElementsAndCommands(t *testing.T) {
	s, _, sc := newTestScraper(t)
	tree := node.NewFakeTree(loginScreen())

	res := sc.Scrape(context.Background(), loginEvent(), provider(tree))
	if !res.Success {
		t.Fatalf("scrape failed: %s", res.Err)
	}
	if res.ElementCount != 7 {
		t.Errorf("element count = %d, want 7", res.ElementCount)
	}
	if res.CommandCount == 0 {
		t.Errorf("no commands generated")
	}
	if !tree.Balanced() {
		t.Errorf("handle leak: %d acquires, %d releases", tree.Acquires(), tree.Releases())
	}

	app, err := s.GetApplication("com.example.mail")
	if err != nil {
		t.Fatalf("GetApplication: %v", err)
	}
	if app.ScrapeCount != 1 {
		t.Errorf("scrape count = %d, want 1", app.ScrapeCount)
	}

	screen, err := s.GetScreen(res.ScreenHash)
	if err != nil {
		t.Fatalf("GetScreen: %v", err)
	}
	if screen.ScreenType != "login" {
		t.Errorf("screen type = %q, want login", screen.ScreenType)
	}
	if screen.ElementCount != 7 {
		t.Errorf("screen element count = %d, want 7", screen.ElementCount)
	}

	cmds, err := sc.CommandsForApp(app.ID)
	if err != nil {
		t.Fatalf("CommandsForApp: %v", err)
	}
	found := false
	for _, c := range cmds {
		if c.Text == "tap sign in" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing 'tap sign in' command; got %d commands", len(cmds))
	}
}

func TestScrapeTwiceIsIdempotent(t *testing.T) {
	s, _, sc := newTestScraper(t)

	for i := 0; i < 2; i++ {
		tree := node.NewFakeTree(loginScreen())
		res := sc.Scrape(context.Background(), loginEvent(), provider(tree))
		if !res.Success {
			t.Fatalf("scrape #%d failed: %s", i, res.Err)
		}
	}

	counts, err := s.TableCounts()
	if err != nil {
		t.Fatalf("TableCounts: %v", err)
	}
	if counts["elements"] != 7 {
		t.Errorf("elements = %d after two passes, want 7", counts["elements"])
	}
	// commands must not duplicate either
	cmds, _ := sc.CommandsForApp("com.example.mail")
	seen := map[string]int{}
	for _, c := range cmds {
		seen[c.ElementHash+"|"+c.Text]++
		if seen[c.ElementHash+"|"+c.Text] > 1 {
			t.Errorf("duplicate command row: %s", c.Text)
		}
	}

	screen, _ := s.GetScreen(hash.Screen("com.example.mail", "Sign in", "com.example.mail.LoginActivity"))
	if screen.VisitCount != 2 {
		t.Errorf("visit count = %d, want 2", screen.VisitCount)
	}
}

func TestScrapeSameLogicalScreenDifferentWindow(t *testing.T) {
	s, _, sc := newTestScraper(t)

	for _, window := range []string{"window-1", "window-9981"} {
		ev := loginEvent()
		ev.WindowID = window
		tree := node.NewFakeTree(loginScreen())
		if res := sc.Scrape(context.Background(), ev, provider(tree)); !res.Success {
			t.Fatalf("scrape (%s) failed: %s", window, res.Err)
		}
	}
	counts, _ := s.TableCounts()
	if counts["screens"] != 1 {
		t.Errorf("screens = %d, want 1 (transient window id must not split rows)", counts["screens"])
	}
}

func TestScrapeRecordsTransition(t *testing.T) {
	s, _, sc := newTestScraper(t)

	tree := node.NewFakeTree(loginScreen())
	first := sc.Scrape(context.Background(), loginEvent(), provider(tree))
	if !first.Success {
		t.Fatalf("first scrape failed: %s", first.Err)
	}

	inboxEv := types.ScreenEvent{Package: "com.example.mail", Title: "Inbox", Activity: "com.example.mail.MainActivity"}
	inboxTree := node.NewFakeTree(node.Branch("android.widget.FrameLayout", "root",
		node.Leaf("android.widget.TextView", "com.example.mail:id/subject", "Welcome")))
	second := sc.Scrape(context.Background(), inboxEv, provider(inboxTree))
	if !second.Success {
		t.Fatalf("second scrape failed: %s", second.Err)
	}

	tr, err := s.GetTransition(first.ScreenHash, second.ScreenHash)
	if err != nil {
		t.Fatalf("GetTransition: %v", err)
	}
	if tr.Count != 1 {
		t.Errorf("transition count = %d, want 1", tr.Count)
	}
}

func TestScrapeInfersRelationships(t *testing.T) {
	s, _, sc := newTestScraper(t)
	tree := node.NewFakeTree(loginScreen())
	if res := sc.Scrape(context.Background(), loginEvent(), provider(tree)); !res.Success {
		t.Fatalf("scrape failed: %s", res.Err)
	}

	labelAttrs := types.ElementAttrs{
		Class: "android.widget.TextView", ResourceID: "com.example.mail:id/email_caption",
		Text: "Email address",
	}
	rels, err := s.ListRelationships(hash.Element(labelAttrs))
	if err != nil {
		t.Fatalf("ListRelationships: %v", err)
	}
	found := false
	for _, r := range rels {
		if r.Kind == types.RelationLabelFor {
			found = true
		}
	}
	if !found {
		t.Errorf("label_for edge missing: %+v", rels)
	}
}

func TestScrapeFailureDegrades(t *testing.T) {
	_, _, sc := newTestScraper(t)
	res := sc.Scrape(context.Background(), loginEvent(),
		node.ProviderFunc(func() (node.Handle, error) { return nil, errors.New("window gone") }))
	if res.Success {
		t.Fatalf("expected failure result")
	}
	if res.Err == "" {
		t.Errorf("failure result missing error detail")
	}
}

func TestScrapeSingleFlightSerializesPerScreen(t *testing.T) {
	_, _, sc := newTestScraper(t)

	// many concurrent events for the same screen: every caller gets a
	// result and no tree sees interleaved handle access
	const n = 8
	trees := make([]*node.FakeTree, n)
	for i := range trees {
		trees[i] = node.NewFakeTree(loginScreen())
	}

	var wg sync.WaitGroup
	results := make([]types.ScrapeResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = sc.Scrape(context.Background(), loginEvent(), provider(trees[i]))
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if !res.Success {
			t.Errorf("caller %d failed: %s", i, res.Err)
		}
	}
	// collapsed callers share one traversal: each tree was either fully
	// walked (balanced) or never touched past construction
	for i, tree := range trees {
		untouched := tree.Acquires() == 1 && tree.Releases() == 0
		if !untouched && !tree.Balanced() {
			t.Errorf("tree %d: %d acquires, %d releases", i, tree.Acquires(), tree.Releases())
		}
	}
}

func TestRecordInteractionDefersOnMissingParent(t *testing.T) {
	s, c, sc := newTestScraper(t)

	attrs := types.ElementAttrs{Class: "android.widget.Button", ResourceID: "id/late", Text: "Late"}
	elementHash := hash.Element(attrs)

	err := sc.RecordInteraction(context.Background(),
		&store.Interaction{ElementHash: elementHash, Action: types.ActionClick, Success: true})
	if err != nil {
		t.Fatalf("RecordInteraction should defer, got %v", err)
	}
	if c.QueueDepth() != 1 {
		t.Fatalf("queue depth = %d, want 1", c.QueueDepth())
	}

	// parent arrives shortly after; the next drain replays the write
	app := &store.Application{PackageName: "com.example.late"}
	if err := store.UpsertApplication(s.DB(), app); err != nil {
		t.Fatalf("UpsertApplication: %v", err)
	}
	if err := store.UpsertElement(s.DB(), &store.Element{Hash: elementHash, AppID: app.ID, Attrs: attrs}); err != nil {
		t.Fatalf("UpsertElement: %v", err)
	}
	if stats := c.DrainOnce(context.Background()); stats.Applied != 1 {
		t.Fatalf("drain stats = %+v, want applied=1", stats)
	}
	if got, _ := s.ListInteractions(elementHash); len(got) != 1 {
		t.Errorf("deferred interaction not persisted")
	}
}

func TestFindCommand(t *testing.T) {
	_, _, sc := newTestScraper(t)
	tree := node.NewFakeTree(loginScreen())
	if res := sc.Scrape(context.Background(), loginEvent(), provider(tree)); !res.Success {
		t.Fatalf("scrape failed: %s", res.Err)
	}

	// exact
	cmd, err := sc.FindCommand("tap sign in")
	if err != nil {
		t.Fatalf("exact FindCommand: %v", err)
	}
	if cmd.Action != types.ActionClick {
		t.Errorf("action = %s, want click", cmd.Action)
	}

	// alias
	if _, err := sc.FindCommand("press sign in"); err != nil {
		t.Errorf("alias FindCommand: %v", err)
	}

	// similar (>= 0.8): trailing plural
	if _, err := sc.FindCommand("tap sign ins"); err != nil {
		t.Errorf("fuzzy FindCommand: %v", err)
	}

	// unrelated phrase stays unmatched
	if _, err := sc.FindCommand("order a pizza"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unrelated phrase matched: %v", err)
	}
}
