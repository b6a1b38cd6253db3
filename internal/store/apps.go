package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Application is one observed package. Exploration keeps the second
// lifecycle (auto-exploration passes) as a nullable JSON sub-record instead
// of a spread of nullable columns; the Go side never sees the raw column.
type Application struct {
	ID               string
	PackageName      string
	AppName          string
	VersionName      string
	VersionCode      int64
	BuildHash        string
	ScrapeCount      int
	ExplorationCount int
	AutoScrape       bool
	Exploration      *ExplorationState
	FirstSeen        time.Time
	LastScraped      time.Time
}

// ExplorationState tracks an in-flight auto-exploration pass
type ExplorationState struct {
	Mode           string    `json:"mode"`
	ScreensVisited int       `json:"screens_visited"`
	LastScreenHash string    `json:"last_screen_hash"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UpsertApplication creates the row on first observation and refreshes
// last-scraped metadata on every later one.
func UpsertApplication(q DBTX, a *Application) error {
	if a.ID == "" {
		a.ID = a.PackageName
	}
	if a.ID == "" {
		return fmt.Errorf("application package name is required")
	}
	now := time.Now()
	if a.FirstSeen.IsZero() {
		a.FirstSeen = now
	}
	if a.LastScraped.IsZero() {
		a.LastScraped = now
	}

	var exploration any
	if a.Exploration != nil {
		b, err := json.Marshal(a.Exploration)
		if err != nil {
			return fmt.Errorf("marshal exploration state: %w", err)
		}
		exploration = string(b)
	}

	_, err := q.Exec(`
		INSERT INTO applications (app_id, package_name, app_name, version_name, version_code,
			build_hash, scrape_count, exploration_count, auto_scrape, exploration_json,
			first_seen, last_scraped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(app_id) DO UPDATE SET
			app_name = CASE WHEN excluded.app_name != '' THEN excluded.app_name ELSE applications.app_name END,
			version_name = CASE WHEN excluded.version_name != '' THEN excluded.version_name ELSE applications.version_name END,
			version_code = MAX(applications.version_code, excluded.version_code),
			build_hash = CASE WHEN excluded.build_hash != '' THEN excluded.build_hash ELSE applications.build_hash END,
			auto_scrape = excluded.auto_scrape,
			exploration_json = COALESCE(excluded.exploration_json, applications.exploration_json),
			last_scraped = excluded.last_scraped
	`, a.ID, a.PackageName, a.AppName, a.VersionName, a.VersionCode,
		a.BuildHash, a.ScrapeCount, a.ExplorationCount, a.AutoScrape, exploration,
		a.FirstSeen, a.LastScraped)
	if err != nil {
		return fmt.Errorf("failed to upsert application: %w", err)
	}
	return nil
}

// GetApplication looks up an application by id
func (s *Store) GetApplication(id string) (*Application, error) {
	row := s.db.QueryRow(`
		SELECT app_id, package_name, app_name, version_name, version_code, build_hash,
			scrape_count, exploration_count, auto_scrape, exploration_json,
			first_seen, last_scraped
		FROM applications WHERE app_id = ?
	`, id)

	var a Application
	var exploration sql.NullString
	err := row.Scan(&a.ID, &a.PackageName, &a.AppName, &a.VersionName, &a.VersionCode,
		&a.BuildHash, &a.ScrapeCount, &a.ExplorationCount, &a.AutoScrape, &exploration,
		&a.FirstSeen, &a.LastScraped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}
	if exploration.Valid && exploration.String != "" {
		var st ExplorationState
		if jerr := json.Unmarshal([]byte(exploration.String), &st); jerr == nil {
			a.Exploration = &st
		}
	}
	return &a, nil
}

// ListApplications returns all known applications ordered by package name
func (s *Store) ListApplications() ([]*Application, error) {
	rows, err := s.db.Query(`SELECT app_id FROM applications ORDER BY package_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []*Application
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		a, err := s.GetApplication(id)
		if err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// BumpScrapeCount increments the scrape counter and stamps last_scraped
func BumpScrapeCount(q DBTX, appID string) error {
	_, err := q.Exec(`
		UPDATE applications SET scrape_count = scrape_count + 1, last_scraped = ?
		WHERE app_id = ?
	`, time.Now(), appID)
	return err
}

// DeleteApplication removes the application and, via cascade, every element,
// command, screen, transition, relationship, interaction and state record it
// owns. Nothing owned by other applications is touched.
func (s *Store) DeleteApplication(id string) error {
	res, err := s.db.Exec("DELETE FROM applications WHERE app_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
