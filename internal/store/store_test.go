package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkjhawar/NewAvanues-sub007/internal/hash"
	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedApp(t *testing.T, s *Store, pkg string) *Application {
	t.Helper()
	app := &Application{PackageName: pkg, AppName: pkg}
	if err := UpsertApplication(s.DB(), app); err != nil {
		t.Fatalf("UpsertApplication(%s): %v", pkg, err)
	}
	return app
}

func seedElement(t *testing.T, s *Store, appID, resource, text string) *Element {
	t.Helper()
	attrs := types.ElementAttrs{
		Class:      "android.widget.Button",
		ResourceID: resource,
		Text:       text,
		Bounds:     types.Bounds{Left: 0, Top: 0, Right: 100, Bottom: 40},
		Flags:      types.Flags{Clickable: true, Enabled: true},
	}
	e := &Element{Hash: hash.Element(attrs), AppID: appID, Attrs: attrs, Role: types.RoleButton}
	if err := UpsertElement(s.DB(), e); err != nil {
		t.Fatalf("UpsertElement(%s): %v", resource, err)
	}
	return e
}

func TestOpenTwiceMigratesOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s.Close()
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if _, err := s.TableCounts(); err != nil {
		t.Errorf("TableCounts after reopen: %v", err)
	}
}

func TestUpsertElementByHash(t *testing.T) {
	s := newTestStore(t)
	app := seedApp(t, s, "com.example.shop")
	e := seedElement(t, s, app.ID, "com.example.shop:id/submit", "Submit")

	// same configuration again: still one row, behavioral fields refreshed
	e2 := *e
	e2.Attrs.Flags.Enabled = false
	e2.FirstSeen = time.Time{}
	e2.LastSeen = time.Time{}
	if err := UpsertElement(s.DB(), &e2); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	counts, err := s.TableCounts()
	if err != nil {
		t.Fatalf("TableCounts: %v", err)
	}
	if counts["elements"] != 1 {
		t.Errorf("elements = %d, want 1 (upsert by hash)", counts["elements"])
	}
	got, err := s.GetElement(e.Hash)
	if err != nil {
		t.Fatalf("GetElement: %v", err)
	}
	if got.Attrs.Flags.Enabled {
		t.Errorf("behavioral field not refreshed on upsert")
	}
	if got.Attrs.Text != "Submit" {
		t.Errorf("identity field changed: %q", got.Attrs.Text)
	}
}

func TestCommandUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	app := seedApp(t, s, "com.example.shop")
	e := seedElement(t, s, app.ID, "com.example.shop:id/submit", "Submit")

	cmd := types.Command{
		ElementHash: e.Hash, Text: "tap submit", Action: types.ActionClick,
		Confidence: 0.9, Synonyms: []string{"click submit", "press submit"},
	}
	for i := 0; i < 2; i++ {
		c := cmd
		if err := UpsertCommand(s.DB(), &c); err != nil {
			t.Fatalf("UpsertCommand #%d: %v", i, err)
		}
	}

	counts, _ := s.TableCounts()
	if counts["commands"] != 1 {
		t.Errorf("commands = %d, want 1", counts["commands"])
	}
	if counts["command_aliases"] != 2 {
		t.Errorf("command_aliases = %d, want 2", counts["command_aliases"])
	}
}

func TestCommandParentMissing(t *testing.T) {
	s := newTestStore(t)
	c := types.Command{ElementHash: "no-such-element", Text: "tap ghost", Action: types.ActionClick}
	err := UpsertCommand(s.DB(), &c)
	if !errors.Is(err, ErrParentMissing) {
		t.Errorf("err = %v, want ErrParentMissing", err)
	}
}

func TestDeleteApplicationCascades(t *testing.T) {
	s := newTestStore(t)
	app := seedApp(t, s, "com.example.shop")
	other := seedApp(t, s, "com.example.mail")

	e1 := seedElement(t, s, app.ID, "com.example.shop:id/submit", "Submit")
	e2 := seedElement(t, s, app.ID, "com.example.shop:id/cancel", "Cancel")
	kept := seedElement(t, s, other.ID, "com.example.mail:id/compose", "Compose")

	cmd := types.Command{ElementHash: e1.Hash, Text: "tap submit", Action: types.ActionClick, Synonyms: []string{"press submit"}}
	if err := UpsertCommand(s.DB(), &cmd); err != nil {
		t.Fatalf("UpsertCommand: %v", err)
	}
	keptCmd := types.Command{ElementHash: kept.Hash, Text: "tap compose", Action: types.ActionClick}
	if err := UpsertCommand(s.DB(), &keptCmd); err != nil {
		t.Fatalf("UpsertCommand: %v", err)
	}

	sc := &Screen{Hash: hash.Screen("com.example.shop", "Cart", "CartActivity"),
		AppID: app.ID, PackageName: "com.example.shop", StableTitle: "Cart"}
	sc2 := &Screen{Hash: hash.Screen("com.example.shop", "Checkout", "CheckoutActivity"),
		AppID: app.ID, PackageName: "com.example.shop", StableTitle: "Checkout"}
	for _, scr := range []*Screen{sc, sc2} {
		if err := UpsertScreen(s.DB(), scr); err != nil {
			t.Fatalf("UpsertScreen: %v", err)
		}
	}
	if err := RecordTransition(s.DB(), sc.Hash, sc2.Hash, 120); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	if err := AddRelationship(s.DB(), &Relationship{FromElement: e1.Hash, ToElement: e2.Hash, Kind: types.RelationGroupMember, Confidence: 0.7}); err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}
	if err := AddInteraction(s.DB(), &Interaction{ElementHash: e1.Hash, ScreenHash: sc.Hash, Action: types.ActionClick, Success: true}); err != nil {
		t.Fatalf("AddInteraction: %v", err)
	}
	if err := AddStateChange(s.DB(), &StateChange{ElementHash: e1.Hash, Attribute: "enabled", OldValue: "true", NewValue: "false"}); err != nil {
		t.Fatalf("AddStateChange: %v", err)
	}

	if err := s.DeleteApplication(app.ID); err != nil {
		t.Fatalf("DeleteApplication: %v", err)
	}

	counts, err := s.TableCounts()
	if err != nil {
		t.Fatalf("TableCounts: %v", err)
	}
	want := map[string]int{
		"applications": 1, "elements": 1, "commands": 1, "command_aliases": 0,
		"screens": 0, "screen_transitions": 0, "element_relationships": 0,
		"interactions": 0, "state_history": 0,
	}
	for table, n := range want {
		if counts[table] != n {
			t.Errorf("%s = %d after cascade, want %d", table, counts[table], n)
		}
	}
	// the other application's data survives untouched
	if _, err := s.GetElement(kept.Hash); err != nil {
		t.Errorf("unowned element was deleted: %v", err)
	}
	if _, err := s.CommandByExactText("tap compose"); err != nil {
		t.Errorf("unowned command was deleted: %v", err)
	}
}

func TestScreenVisitCountAndDedup(t *testing.T) {
	s := newTestStore(t)
	app := seedApp(t, s, "com.example.mail")

	// two visits with different transient window ids, same logical screen
	h := hash.Screen("com.example.mail", "Inbox", "MainActivity")
	for i := 0; i < 2; i++ {
		sc := &Screen{Hash: h, AppID: app.ID, PackageName: "com.example.mail",
			StableTitle: "Inbox", Activity: "MainActivity", ElementCount: 10 + i}
		if err := UpsertScreen(s.DB(), sc); err != nil {
			t.Fatalf("UpsertScreen #%d: %v", i, err)
		}
	}

	counts, _ := s.TableCounts()
	if counts["screens"] != 1 {
		t.Fatalf("screens = %d, want 1", counts["screens"])
	}
	got, err := s.GetScreen(h)
	if err != nil {
		t.Fatalf("GetScreen: %v", err)
	}
	if got.VisitCount != 2 {
		t.Errorf("visit_count = %d, want 2", got.VisitCount)
	}
	if got.ElementCount != 11 {
		t.Errorf("element_count = %d, want latest (11)", got.ElementCount)
	}
}

func TestTransitionRunningAverage(t *testing.T) {
	s := newTestStore(t)
	app := seedApp(t, s, "com.example.mail")
	a := &Screen{Hash: hash.Screen("com.example.mail", "Inbox", "Main"), AppID: app.ID, PackageName: "com.example.mail"}
	b := &Screen{Hash: hash.Screen("com.example.mail", "Compose", "Main"), AppID: app.ID, PackageName: "com.example.mail"}
	for _, sc := range []*Screen{a, b} {
		if err := UpsertScreen(s.DB(), sc); err != nil {
			t.Fatalf("UpsertScreen: %v", err)
		}
	}

	for _, ms := range []float64{100, 200, 300} {
		if err := RecordTransition(s.DB(), a.Hash, b.Hash, ms); err != nil {
			t.Fatalf("RecordTransition(%f): %v", ms, err)
		}
	}

	tr, err := s.GetTransition(a.Hash, b.Hash)
	if err != nil {
		t.Fatalf("GetTransition: %v", err)
	}
	if tr.Count != 3 {
		t.Errorf("count = %d, want 3", tr.Count)
	}
	if tr.AvgMs < 199 || tr.AvgMs > 201 {
		t.Errorf("avg = %f, want ~200", tr.AvgMs)
	}
	counts, _ := s.TableCounts()
	if counts["screen_transitions"] != 1 {
		t.Errorf("transitions = %d, want 1 (upsert on pair)", counts["screen_transitions"])
	}
}

func TestInteractionParentMissing(t *testing.T) {
	s := newTestStore(t)
	err := AddInteraction(s.DB(), &Interaction{ElementHash: "missing", Action: types.ActionClick})
	if !errors.Is(err, ErrParentMissing) {
		t.Errorf("err = %v, want ErrParentMissing", err)
	}
}

func TestStateChanges(t *testing.T) {
	prev := &Element{Attrs: types.ElementAttrs{Flags: types.Flags{Enabled: true, Checked: false}}}
	next := types.ElementAttrs{Flags: types.Flags{Enabled: false, Checked: true}}

	changes := StateChanges(prev, next)
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2: %+v", len(changes), changes)
	}
	seen := map[string]bool{}
	for _, c := range changes {
		seen[c.Attribute] = true
	}
	if !seen["checked"] || !seen["enabled"] {
		t.Errorf("changes = %+v, want checked and enabled", changes)
	}
}

func TestApplicationExplorationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	app := &Application{
		PackageName: "com.example.shop",
		Exploration: &ExplorationState{Mode: "systematic", ScreensVisited: 4, StartedAt: time.Now()},
	}
	if err := UpsertApplication(s.DB(), app); err != nil {
		t.Fatalf("UpsertApplication: %v", err)
	}
	got, err := s.GetApplication(app.ID)
	if err != nil {
		t.Fatalf("GetApplication: %v", err)
	}
	if got.Exploration == nil || got.Exploration.Mode != "systematic" || got.Exploration.ScreensVisited != 4 {
		t.Errorf("exploration sub-record lost: %+v", got.Exploration)
	}

	// an update without exploration state must not wipe it
	if err := UpsertApplication(s.DB(), &Application{PackageName: "com.example.shop", AppName: "Shop"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, _ = s.GetApplication(app.ID)
	if got.Exploration == nil {
		t.Errorf("exploration state wiped by unrelated update")
	}
	if got.AppName != "Shop" {
		t.Errorf("app name not updated: %q", got.AppName)
	}
}
