// Package consolidate folds the two legacy per-concern databases (the voice
// command store and the app scrape store) into the unified store, once. The
// procedure is guarded by a completion flag in the meta table; the flag
// commits in the same transaction as the migrated rows, so a crash mid-run
// leaves it unset and the next startup retries from scratch. Legacy files are
// opened read-only and never deleted here.
package consolidate

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/mkjhawar/NewAvanues-sub007/internal/coordinator"
	"github.com/mkjhawar/NewAvanues-sub007/internal/hash"
	"github.com/mkjhawar/NewAvanues-sub007/internal/logging"
	"github.com/mkjhawar/NewAvanues-sub007/internal/store"
	"github.com/mkjhawar/NewAvanues-sub007/internal/synth"
	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

// CompletionKey is the meta-table flag that marks a finished consolidation
const CompletionKey = "consolidation_complete"

// Config locates the legacy store files. A missing file is treated as an
// empty source, not an error, since devices may carry either store alone.
type Config struct {
	CommandStorePath string // voicecommands.db: elements (epoch-1 hashes) + commands
	ScrapeStorePath  string // appscrape.db: applications + screens
}

// Report summarizes one consolidation run
type Report struct {
	AlreadyDone  bool
	Applications int
	Elements     int
	Commands     int
	Screens      int
	Remapped     int // epoch-1 rows rewritten under their epoch-2 hash
	Skipped      int // legacy rows whose stored hash did not match their attributes
}

// Engine performs the one-time merge into the unified store
type Engine struct {
	store *store.Store
	coord *coordinator.Coordinator
	cfg   Config
}

// New builds an engine over an open store and coordinator
func New(s *store.Store, c *coordinator.Coordinator, cfg Config) *Engine {
	return &Engine{store: s, coord: c, cfg: cfg}
}

// legacyElement is one row of the command store's elements table, keyed by
// its epoch-1 FNV digest
type legacyElement struct {
	oldHash string
	pkg     string
	attrs   types.ElementAttrs
}

type legacyCommand struct {
	oldHash    string
	text       string
	action     string
	confidence float64
}

type legacyApp struct {
	pkg         string
	name        string
	versionName string
	versionCode int64
}

type legacyScreen struct {
	pkg        string
	title      string
	activity   string
	visitCount int
}

// MigrateIfNeeded runs the consolidation unless the completion flag is
// already set. Re-running after success is a no-op.
func (e *Engine) MigrateIfNeeded(ctx context.Context) (*Report, error) {
	done, err := e.store.GetMeta(CompletionKey)
	if err != nil {
		return nil, fmt.Errorf("read completion flag: %w", err)
	}
	if done == "true" {
		logging.Debug("consolidate", "already consolidated, skipping")
		return &Report{AlreadyDone: true}, nil
	}

	elements, commands, cmdApps, err := e.readCommandStore()
	if err != nil {
		return nil, err
	}
	apps, screens, err := e.readScrapeStore()
	if err != nil {
		return nil, err
	}

	// Field priority on conflict is fixed: the scrape store wins for
	// application fields, the command store wins for command fields. The
	// command store's app rows seed the map and the scrape store's rows
	// overwrite them.
	merged := map[string]legacyApp{}
	for _, a := range cmdApps {
		merged[a.pkg] = a
	}
	for _, a := range apps {
		merged[a.pkg] = a
	}
	// element and screen rows may reference packages neither app table names
	for _, el := range elements {
		if _, ok := merged[el.pkg]; !ok {
			merged[el.pkg] = legacyApp{pkg: el.pkg}
		}
	}
	for _, sc := range screens {
		if _, ok := merged[sc.pkg]; !ok {
			merged[sc.pkg] = legacyApp{pkg: sc.pkg}
		}
	}

	report := &Report{}
	err = e.coord.RunInTransaction(ctx, func(tx *sql.Tx) error {
		*report = Report{} // the closure must not double-count on retry
		if err := e.writeAll(tx, merged, elements, commands, screens, report); err != nil {
			return err
		}
		// flag commits with the rows or not at all
		return store.SetMetaTx(tx, CompletionKey, "true")
	})
	if err != nil {
		return nil, fmt.Errorf("consolidation failed, will retry at next startup: %w", err)
	}

	logging.Info("consolidate", "merged %d apps, %d elements (%d remapped, %d skipped), %d commands, %d screens",
		report.Applications, report.Elements, report.Remapped, report.Skipped, report.Commands, report.Screens)
	return report, nil
}

func (e *Engine) writeAll(tx *sql.Tx, apps map[string]legacyApp, elements []legacyElement,
	commands []legacyCommand, screens []legacyScreen, report *Report) error {

	for _, a := range apps {
		row := &store.Application{
			PackageName: a.pkg,
			AppName:     a.name,
			VersionName: a.versionName,
			VersionCode: a.versionCode,
		}
		if err := store.UpsertApplication(tx, row); err != nil {
			return err
		}
		report.Applications++
	}

	// epoch-1 hash -> epoch-2 hash, for rebinding commands
	remap := make(map[string]string, len(elements))
	for _, el := range elements {
		if hash.LegacyElement(el.attrs) != el.oldHash {
			// the stored digest does not match the stored attributes; the
			// row cannot be trusted as an identity, so it is dropped
			logging.Warn("consolidate", "legacy element %s fails its own digest, skipping", el.oldHash)
			report.Skipped++
			continue
		}
		newHash := hash.Element(el.attrs)
		remap[el.oldHash] = newHash

		res := synth.Synthesize(el.attrs)
		row := &store.Element{
			Hash:      newHash,
			AppID:     el.pkg,
			Attrs:     el.attrs,
			Role:      res.Role,
			InputType: res.InputType,
		}
		if err := store.UpsertElement(tx, row); err != nil {
			return err
		}
		report.Elements++
		report.Remapped++
	}

	for _, c := range commands {
		newHash, ok := remap[c.oldHash]
		if !ok {
			logging.Warn("consolidate", "legacy command %q references unknown element %s, skipping", c.text, c.oldHash)
			report.Skipped++
			continue
		}
		cmd := types.Command{
			ElementHash: newHash,
			Text:        c.text,
			Action:      types.Action(c.action),
			Confidence:  c.confidence,
		}
		if err := store.UpsertCommand(tx, &cmd); err != nil {
			return err
		}
		report.Commands++
	}

	for _, sc := range screens {
		row := &store.Screen{
			Hash:        hash.Screen(sc.pkg, sc.title, sc.activity),
			AppID:       sc.pkg,
			PackageName: sc.pkg,
			StableTitle: sc.title,
			Activity:    sc.activity,
		}
		if err := store.UpsertScreen(tx, row); err != nil {
			return err
		}
		// UpsertScreen seeds visit_count at 1; carry the legacy tally over
		if sc.visitCount > 1 {
			if _, err := tx.Exec(`UPDATE screens SET visit_count = ? WHERE screen_hash = ?`,
				sc.visitCount, row.Hash); err != nil {
				return err
			}
		}
		report.Screens++
	}
	return nil
}

// openLegacy opens a legacy database file read-only via the cgo-free driver.
// Returns (nil, nil) when the file does not exist.
func openLegacy(path string) (*sql.DB, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logging.Info("consolidate", "legacy store %s not present, treating as empty", path)
		return nil, nil
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open legacy store %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping legacy store %s: %w", path, err)
	}
	return db, nil
}

func (e *Engine) readCommandStore() ([]legacyElement, []legacyCommand, []legacyApp, error) {
	db, err := openLegacy(e.cfg.CommandStorePath)
	if err != nil || db == nil {
		return nil, nil, nil, err
	}
	defer db.Close()

	var elements []legacyElement
	rows, err := db.Query(`SELECT element_hash, package_name, class_name, resource_id, element_text, content_desc, bounds FROM elements`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read legacy elements: %w", err)
	}
	for rows.Next() {
		var el legacyElement
		var bounds string
		if err := rows.Scan(&el.oldHash, &el.pkg, &el.attrs.Class, &el.attrs.ResourceID,
			&el.attrs.Text, &el.attrs.Label, &bounds); err != nil {
			rows.Close()
			return nil, nil, nil, err
		}
		fmt.Sscanf(bounds, "%d,%d,%d,%d", &el.attrs.Bounds.Left, &el.attrs.Bounds.Top,
			&el.attrs.Bounds.Right, &el.attrs.Bounds.Bottom)
		elements = append(elements, el)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	var commands []legacyCommand
	rows, err = db.Query(`SELECT element_hash, command_text, action_type, confidence FROM commands`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read legacy commands: %w", err)
	}
	for rows.Next() {
		var c legacyCommand
		if err := rows.Scan(&c.oldHash, &c.text, &c.action, &c.confidence); err != nil {
			rows.Close()
			return nil, nil, nil, err
		}
		commands = append(commands, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	apps, err := readApps(db)
	if err != nil {
		return nil, nil, nil, err
	}
	logging.Debug("consolidate", "command store: %d elements, %d commands, %d apps",
		len(elements), len(commands), len(apps))
	return elements, commands, apps, nil
}

func (e *Engine) readScrapeStore() ([]legacyApp, []legacyScreen, error) {
	db, err := openLegacy(e.cfg.ScrapeStorePath)
	if err != nil || db == nil {
		return nil, nil, err
	}
	defer db.Close()

	apps, err := readApps(db)
	if err != nil {
		return nil, nil, err
	}

	var screens []legacyScreen
	rows, err := db.Query(`SELECT package_name, screen_title, activity_name, visit_count FROM screens`)
	if err != nil {
		return nil, nil, fmt.Errorf("read legacy screens: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc legacyScreen
		if err := rows.Scan(&sc.pkg, &sc.title, &sc.activity, &sc.visitCount); err != nil {
			return nil, nil, err
		}
		screens = append(screens, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	logging.Debug("consolidate", "scrape store: %d apps, %d screens", len(apps), len(screens))
	return apps, screens, nil
}

// readApps reads the applications table both legacy stores carry
func readApps(db *sql.DB) ([]legacyApp, error) {
	rows, err := db.Query(`SELECT package_name, app_name, version_name, version_code FROM applications`)
	if err != nil {
		return nil, fmt.Errorf("read legacy applications: %w", err)
	}
	defer rows.Close()

	var apps []legacyApp
	for rows.Next() {
		var a legacyApp
		if err := rows.Scan(&a.pkg, &a.name, &a.versionName, &a.versionCode); err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}
