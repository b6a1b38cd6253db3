package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mkjhawar/NewAvanues-sub007/internal/hash"
	"github.com/mkjhawar/NewAvanues-sub007/internal/types"
)

// Element is one persisted interactive node. Identity fields (class,
// resource id, text, label, bounds) are frozen by the hash; behavioral
// fields update in place on later scrapes.
type Element struct {
	Hash        string
	AppID       string
	Attrs       types.ElementAttrs
	Role        types.Role
	InputType   string
	FormGroupID string
	HashVersion int
	FirstSeen   time.Time
	LastSeen    time.Time
}

// UpsertElement inserts a new element row or refreshes the behavioral
// fields of an existing one. Identity fields never change under the same
// hash, so the update clause deliberately leaves them alone.
func UpsertElement(q DBTX, e *Element) error {
	if e.Hash == "" {
		return fmt.Errorf("element hash is required")
	}
	if e.AppID == "" {
		return fmt.Errorf("element app id is required")
	}
	now := time.Now()
	if e.FirstSeen.IsZero() {
		e.FirstSeen = now
	}
	if e.LastSeen.IsZero() {
		e.LastSeen = now
	}
	if e.HashVersion == 0 {
		e.HashVersion = hash.Version
	}

	f := e.Attrs.Flags
	_, err := q.Exec(`
		INSERT INTO elements (element_hash, app_id, class_name, resource_id, text, label, bounds,
			clickable, long_clickable, editable, scrollable, checkable, checked, focusable, enabled,
			depth, sibling_index, semantic_role, input_type, form_group_id, hash_version,
			first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(element_hash) DO UPDATE SET
			clickable = excluded.clickable,
			long_clickable = excluded.long_clickable,
			editable = excluded.editable,
			scrollable = excluded.scrollable,
			checkable = excluded.checkable,
			checked = excluded.checked,
			focusable = excluded.focusable,
			enabled = excluded.enabled,
			depth = excluded.depth,
			sibling_index = excluded.sibling_index,
			semantic_role = excluded.semantic_role,
			input_type = excluded.input_type,
			form_group_id = excluded.form_group_id,
			last_seen = excluded.last_seen
	`, e.Hash, e.AppID, e.Attrs.Class, e.Attrs.ResourceID, e.Attrs.Text, e.Attrs.Label,
		e.Attrs.Bounds.String(), f.Clickable, f.LongClickable, f.Editable, f.Scrollable,
		f.Checkable, f.Checked, f.Focusable, f.Enabled, e.Attrs.Depth, e.Attrs.Index,
		string(e.Role), e.InputType, e.FormGroupID, e.HashVersion, e.FirstSeen, e.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to upsert element: %w", err)
	}
	return nil
}

// GetElement looks up an element by content hash
func (s *Store) GetElement(elementHash string) (*Element, error) {
	return GetElementTx(s.db, elementHash)
}

// GetElementTx is the lookup usable inside a coordinator transaction
func GetElementTx(q DBTX, elementHash string) (*Element, error) {
	row := q.QueryRow(`
		SELECT element_hash, app_id, class_name, resource_id, text, label, bounds,
			clickable, long_clickable, editable, scrollable, checkable, checked, focusable, enabled,
			depth, sibling_index, semantic_role, input_type, form_group_id, hash_version,
			first_seen, last_seen
		FROM elements WHERE element_hash = ?
	`, elementHash)
	return scanElement(row)
}

func scanElement(row *sql.Row) (*Element, error) {
	var e Element
	var bounds, role string
	f := &e.Attrs.Flags
	err := row.Scan(&e.Hash, &e.AppID, &e.Attrs.Class, &e.Attrs.ResourceID, &e.Attrs.Text,
		&e.Attrs.Label, &bounds, &f.Clickable, &f.LongClickable, &f.Editable, &f.Scrollable,
		&f.Checkable, &f.Checked, &f.Focusable, &f.Enabled, &e.Attrs.Depth, &e.Attrs.Index,
		&role, &e.InputType, &e.FormGroupID, &e.HashVersion, &e.FirstSeen, &e.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan element: %w", err)
	}
	e.Role = types.Role(role)
	e.Attrs.Bounds = parseBounds(bounds)
	return &e, nil
}

// ListElementsByApp returns all elements owned by an application
func (s *Store) ListElementsByApp(appID string) ([]*Element, error) {
	rows, err := s.db.Query(`SELECT element_hash FROM elements WHERE app_id = ? ORDER BY depth, sibling_index`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Element
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		e, err := s.GetElement(h)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ElementExists checks for a row without scanning it
func ElementExists(q DBTX, elementHash string) (bool, error) {
	var n int
	if err := q.QueryRow("SELECT COUNT(*) FROM elements WHERE element_hash = ?", elementHash).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// StateChanges compares a fresh scrape of an element against its stored row
// and returns the behavioral attributes that flipped, oldest row first.
// Identity fields cannot change by construction.
func StateChanges(prev *Element, next types.ElementAttrs) []StateChange {
	var changes []StateChange
	flag := func(name string, old, new bool) {
		if old != new {
			changes = append(changes, StateChange{
				Attribute: name,
				OldValue:  strconv.FormatBool(old),
				NewValue:  strconv.FormatBool(new),
			})
		}
	}
	pf, nf := prev.Attrs.Flags, next.Flags
	flag("checked", pf.Checked, nf.Checked)
	flag("enabled", pf.Enabled, nf.Enabled)
	flag("clickable", pf.Clickable, nf.Clickable)
	flag("editable", pf.Editable, nf.Editable)
	flag("scrollable", pf.Scrollable, nf.Scrollable)
	return changes
}

func parseBounds(s string) types.Bounds {
	var b types.Bounds
	fmt.Sscanf(s, "%d,%d,%d,%d", &b.Left, &b.Top, &b.Right, &b.Bottom)
	return b
}
