package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Screen is one distinct logical screen, keyed by the hash of
// (package, stable title, activity)
type Screen struct {
	Hash          string
	AppID         string
	PackageName   string
	StableTitle   string
	Activity      string
	ScreenType    string
	PrimaryAction string
	ElementCount  int
	VisitCount    int
	FirstSeen     time.Time
	LastSeen      time.Time
}

// Transition is a directed edge between two screens
type Transition struct {
	FromScreen string
	ToScreen   string
	Count      int
	AvgMs      float64
	LastAt     time.Time
}

// UpsertScreen creates the screen on first encounter and bumps the visit
// counter on every later one.
func UpsertScreen(q DBTX, sc *Screen) error {
	if sc.Hash == "" || sc.AppID == "" {
		return fmt.Errorf("screen hash and app id are required")
	}
	now := time.Now()
	if sc.FirstSeen.IsZero() {
		sc.FirstSeen = now
	}
	if sc.LastSeen.IsZero() {
		sc.LastSeen = now
	}

	_, err := q.Exec(`
		INSERT INTO screens (screen_hash, app_id, package_name, stable_title, activity,
			screen_type, primary_action, element_count, visit_count, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(screen_hash) DO UPDATE SET
			screen_type = CASE WHEN excluded.screen_type != 'unknown' THEN excluded.screen_type ELSE screens.screen_type END,
			primary_action = CASE WHEN excluded.primary_action != '' THEN excluded.primary_action ELSE screens.primary_action END,
			element_count = excluded.element_count,
			visit_count = screens.visit_count + 1,
			last_seen = excluded.last_seen
	`, sc.Hash, sc.AppID, sc.PackageName, sc.StableTitle, sc.Activity,
		sc.ScreenType, sc.PrimaryAction, sc.ElementCount, sc.FirstSeen, sc.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to upsert screen: %w", err)
	}
	return nil
}

// GetScreen looks up a screen by hash
func (s *Store) GetScreen(screenHash string) (*Screen, error) {
	row := s.db.QueryRow(`
		SELECT screen_hash, app_id, package_name, stable_title, activity, screen_type,
			primary_action, element_count, visit_count, first_seen, last_seen
		FROM screens WHERE screen_hash = ?
	`, screenHash)

	var sc Screen
	err := row.Scan(&sc.Hash, &sc.AppID, &sc.PackageName, &sc.StableTitle, &sc.Activity,
		&sc.ScreenType, &sc.PrimaryAction, &sc.ElementCount, &sc.VisitCount,
		&sc.FirstSeen, &sc.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan screen: %w", err)
	}
	return &sc, nil
}

// ListScreensByApp returns all screens owned by an application
func (s *Store) ListScreensByApp(appID string) ([]*Screen, error) {
	rows, err := s.db.Query(`SELECT screen_hash FROM screens WHERE app_id = ? ORDER BY last_seen DESC`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Screen
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		sc, err := s.GetScreen(h)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ScreenExists checks for a row without scanning it
func ScreenExists(q DBTX, screenHash string) (bool, error) {
	var n int
	if err := q.QueryRow("SELECT COUNT(*) FROM screens WHERE screen_hash = ?", screenHash).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordTransition upserts the (from, to) edge: the count increments and the
// average transition time folds in the new sample.
func RecordTransition(q DBTX, from, to string, elapsedMs float64) error {
	for _, h := range []string{from, to} {
		ok, err := ScreenExists(q, h)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("transition endpoint %s: %w", h, ErrParentMissing)
		}
	}

	_, err := q.Exec(`
		INSERT INTO screen_transitions (from_screen, to_screen, transition_count, avg_transition_ms, last_transition)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(from_screen, to_screen) DO UPDATE SET
			transition_count = screen_transitions.transition_count + 1,
			avg_transition_ms = screen_transitions.avg_transition_ms +
				(excluded.avg_transition_ms - screen_transitions.avg_transition_ms) / (screen_transitions.transition_count + 1),
			last_transition = excluded.last_transition
	`, from, to, elapsedMs, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// GetTransition reads one directed edge
func (s *Store) GetTransition(from, to string) (*Transition, error) {
	row := s.db.QueryRow(`
		SELECT from_screen, to_screen, transition_count, avg_transition_ms, last_transition
		FROM screen_transitions WHERE from_screen = ? AND to_screen = ?
	`, from, to)

	var t Transition
	err := row.Scan(&t.FromScreen, &t.ToScreen, &t.Count, &t.AvgMs, &t.LastAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transition: %w", err)
	}
	return &t, nil
}
