package store

import (
	"fmt"
	"time"

	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

// Relationship is a typed edge between two elements
type Relationship struct {
	FromElement string
	ToElement   string
	Kind        types.RelationKind
	Confidence  float64
	Source      string
	CreatedAt   time.Time
}

// Interaction is one append-only record of a user action on an element
type Interaction struct {
	ElementHash string
	ScreenHash  string
	Action      types.Action
	Success     bool
	At          time.Time
}

// StateChange is one append-only record of an attribute flip
type StateChange struct {
	ElementHash string
	Attribute   string
	OldValue    string
	NewValue    string
	At          time.Time
}

// AddRelationship upserts a typed edge between two elements. Both endpoints
// must exist; a missing one is a deferred-write condition, not a failure.
func AddRelationship(q DBTX, r *Relationship) error {
	for _, h := range []string{r.FromElement, r.ToElement} {
		ok, err := ElementExists(q, h)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("relationship endpoint %s: %w", h, ErrParentMissing)
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Source == "" {
		r.Source = "scrape"
	}
	_, err := q.Exec(`
		INSERT INTO element_relationships (from_element, to_element, relation, confidence, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_element, to_element, relation) DO UPDATE SET
			confidence = excluded.confidence,
			source = excluded.source
	`, r.FromElement, r.ToElement, string(r.Kind), r.Confidence, r.Source, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert relationship: %w", err)
	}
	return nil
}

// ListRelationships returns the typed edges leaving an element
func (s *Store) ListRelationships(fromElement string) ([]*Relationship, error) {
	rows, err := s.db.Query(`
		SELECT from_element, to_element, relation, confidence, source, created_at
		FROM element_relationships WHERE from_element = ? ORDER BY relation, to_element
	`, fromElement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		var r Relationship
		var kind string
		if err := rows.Scan(&r.FromElement, &r.ToElement, &kind, &r.Confidence, &r.Source, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Kind = types.RelationKind(kind)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// AddInteraction appends one interaction record. The element (and screen,
// when given) must already be persisted; otherwise the write is a
// deferred-write condition.
func AddInteraction(q DBTX, in *Interaction) error {
	ok, err := ElementExists(q, in.ElementHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("interaction element %s: %w", in.ElementHash, ErrParentMissing)
	}
	var screen any
	if in.ScreenHash != "" {
		ok, err := ScreenExists(q, in.ScreenHash)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("interaction screen %s: %w", in.ScreenHash, ErrParentMissing)
		}
		screen = in.ScreenHash
	}
	if in.At.IsZero() {
		in.At = time.Now()
	}
	_, err = q.Exec(`
		INSERT INTO interactions (element_hash, screen_hash, action, success, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, in.ElementHash, screen, string(in.Action), in.Success, in.At)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

// ListInteractions returns an element's interaction log, oldest first
func (s *Store) ListInteractions(elementHash string) ([]*Interaction, error) {
	rows, err := s.db.Query(`
		SELECT element_hash, COALESCE(screen_hash, ''), action, success, created_at
		FROM interactions WHERE element_hash = ? ORDER BY created_at, id
	`, elementHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Interaction
	for rows.Next() {
		var in Interaction
		var action string
		if err := rows.Scan(&in.ElementHash, &in.ScreenHash, &action, &in.Success, &in.At); err != nil {
			return nil, err
		}
		in.Action = types.Action(action)
		out = append(out, &in)
	}
	return out, rows.Err()
}

// AddStateChange appends one attribute-flip record
func AddStateChange(q DBTX, sc *StateChange) error {
	ok, err := ElementExists(q, sc.ElementHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state change element %s: %w", sc.ElementHash, ErrParentMissing)
	}
	if sc.At.IsZero() {
		sc.At = time.Now()
	}
	_, err = q.Exec(`
		INSERT INTO state_history (element_hash, attribute, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sc.ElementHash, sc.Attribute, sc.OldValue, sc.NewValue, sc.At)
	if err != nil {
		return fmt.Errorf("failed to insert state change: %w", err)
	}
	return nil
}

// ListStateHistory returns an element's attribute history, oldest first
func (s *Store) ListStateHistory(elementHash string) ([]*StateChange, error) {
	rows, err := s.db.Query(`
		SELECT element_hash, attribute, old_value, new_value, created_at
		FROM state_history WHERE element_hash = ? ORDER BY created_at, id
	`, elementHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StateChange
	for rows.Next() {
		var sc StateChange
		if err := rows.Scan(&sc.ElementHash, &sc.Attribute, &sc.OldValue, &sc.NewValue, &sc.At); err != nil {
			return nil, err
		}
		out = append(out, &sc)
	}
	return out, rows.Err()
}
